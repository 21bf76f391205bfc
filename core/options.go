package orchestration

import (
	"fmt"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/events"
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
)

// ModelSpec configures one upstream call. A spec needs a Streamer, a
// Completer or both; with both, Streaming selects which one is used.
type ModelSpec struct {
	// ID is the sourceId tagging every fragment of the call.
	ID        string
	Model     string
	Streamer  llms.Streamer
	Completer llms.Completer
	Streaming bool
	// Instruction is appended to the call's prompt. For the primary and
	// synthesis calls it is sent as a system turn.
	Instruction string
}

// StreamingModel is a spec using the streaming variant of client.
func StreamingModel(id, model string, client llms.Streamer) ModelSpec {
	return ModelSpec{ID: id, Model: model, Streamer: client, Streaming: true}
}

// CompletingModel is a spec using the non-streaming variant of client.
func CompletingModel(id, model string, client llms.Completer) ModelSpec {
	return ModelSpec{ID: id, Model: model, Completer: client}
}

func (m ModelSpec) WithInstruction(instruction string) ModelSpec {
	m.Instruction = instruction
	return m
}

func (m ModelSpec) streams() bool {
	return m.Streamer != nil && (m.Streaming || m.Completer == nil)
}

func (m ModelSpec) validate() error {
	if m.ID == "" {
		return fmt.Errorf("model %q has no id", m.Model)
	}
	if m.Streamer == nil && m.Completer == nil {
		return fmt.Errorf("model %q has no client", m.ID)
	}
	return nil
}

type CoordinatorOption func(*Coordinator)

// WithPrimary sets the model answering the conversation. It must stream.
func WithPrimary(spec ModelSpec) CoordinatorOption {
	return func(c *Coordinator) {
		spec.Streaming = true
		c.primary = &spec
	}
}

func WithSecondaries(specs ...ModelSpec) CoordinatorOption {
	return func(c *Coordinator) {
		c.secondaries = append(c.secondaries, specs...)
	}
}

func WithSynthesis(spec ModelSpec) CoordinatorOption {
	return func(c *Coordinator) {
		c.synthesis = &spec
	}
}

// WithCallTimeout bounds every single upstream call. A call running out of
// time fails; it does not fail the session by itself.
func WithCallTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.callTimeout = timeout
	}
}

// WithSecondaryConcurrency limits how many analysis calls run at once.
// Non-positive values mean no limit.
func WithSecondaryConcurrency(limit int) CoordinatorOption {
	return func(c *Coordinator) {
		c.secondaryLimit = limit
	}
}

// WithMaxPending bounds the bytes an upstream stream may buffer without a
// record boundary.
func WithMaxPending(limit int) CoordinatorOption {
	return func(c *Coordinator) {
		c.maxPending = limit
	}
}

// WithRelayTimeout bounds each downstream write. A write running out of time
// cancels the session, and the terminator is dropped while that write is
// still stuck.
func WithRelayTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.relayTimeout = timeout
	}
}

func WithRegistry(registry *Registry) CoordinatorOption {
	return func(c *Coordinator) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// WithEventHandler registers an observer receiving every lifecycle event.
// Handlers are called synchronously and must not block.
func WithEventHandler(handler func(events.Event)) CoordinatorOption {
	return func(c *Coordinator) {
		c.callbacks.handlers = append(c.callbacks.handlers, handler)
	}
}

func WithSessionEndCallback(callback func(sessionID string, outcome relay.Outcome, err error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.callbacks.onSessionEnd = callback
	}
}

func WithCallFinishedCallback(callback func(sessionID string, role relay.Role, result llms.CallResult)) CoordinatorOption {
	return func(c *Coordinator) {
		c.callbacks.onCallFinished = callback
	}
}
