package relay

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/PaulBappoo/Deeperseek/core/relay"

var logger = otelslog.NewLogger(scopeName)
