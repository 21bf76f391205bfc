package app

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/PaulBappoo/Deeperseek/internal/app"

var logger = otelslog.NewLogger(scopeName)
