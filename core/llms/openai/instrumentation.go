package openai

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/PaulBappoo/Deeperseek/core/llms/openai"

var tracer = otel.Tracer(scopeName)
