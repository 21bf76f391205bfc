package orchestration

import (
	"github.com/PaulBappoo/Deeperseek/core/events"
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
)

type eventEmitter func(events.Event)

type callbacks struct {
	handlers       []func(events.Event)
	onSessionEnd   func(sessionID string, outcome relay.Outcome, err error)
	onCallFinished func(sessionID string, role relay.Role, result llms.CallResult)
}

func newCallbackEventEmitter(opts callbacks) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.SessionEnded:
			if opts.onSessionEnd != nil {
				opts.onSessionEnd(typedEvent.SessionID(), typedEvent.Outcome, typedEvent.Err)
			}
		case events.CallFinished:
			if opts.onCallFinished != nil {
				opts.onCallFinished(typedEvent.SessionID(), typedEvent.Role, typedEvent.Result)
			}
		}

		for _, handler := range opts.handlers {
			handler(event)
		}
	}
}
