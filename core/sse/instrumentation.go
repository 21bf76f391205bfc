package sse

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/PaulBappoo/Deeperseek/core/sse"

var logger = otelslog.NewLogger(scopeName)
