package events

import (
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
)

const (
	// KindCallStarted identifies an issued upstream call.
	KindCallStarted Kind = "call.started"
	// KindCallFinished identifies the result of an upstream call.
	KindCallFinished Kind = "call.finished"
)

// CallStarted describes an upstream call as it is issued.
type CallStarted struct {
	Base
	Role      relay.Role
	SourceID  string
	Model     string
	Streaming bool
}

// NewCallStarted creates a call started event.
func NewCallStarted(sessionID string, role relay.Role, sourceID, model string, streaming bool) CallStarted {
	return CallStarted{
		Base:      NewBase(KindCallStarted, sessionID),
		Role:      role,
		SourceID:  sourceID,
		Model:     model,
		Streaming: streaming,
	}
}

// CallFinished carries the single result of an upstream call.
type CallFinished struct {
	Base
	Role   relay.Role
	Result llms.CallResult
}

// NewCallFinished creates a call finished event.
func NewCallFinished(sessionID string, role relay.Role, result llms.CallResult) CallFinished {
	return CallFinished{Base: NewBase(KindCallFinished, sessionID), Role: role, Result: result}
}
