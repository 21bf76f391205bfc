package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/jinzhu/copier"
)

// ErrMissingTerminator is returned when a relay stream ends before its
// terminator.
var ErrMissingTerminator = errors.New("relay stream ended without terminator")

// Message is a point-in-time copy of one source's buffer.
type Message struct {
	Role      relay.Role `json:"role"`
	SourceID  string     `json:"source"`
	Text      string     `json:"text"`
	State     State      `json:"state"`
	Error     string     `json:"error,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
}

// Update is delivered to observers for every applied event. Message is set
// for fragment and source_end events.
type Update struct {
	SessionID string
	Kind      relay.Kind
	Message   *Message
	Outcome   relay.Outcome
	Error     *relay.ErrorDetail
}

// Snapshot is a deep copy of the aggregated state of a session.
type Snapshot struct {
	SessionID string
	Messages  []Message
	Finished  bool
	Outcome   relay.Outcome
	Error     *relay.ErrorDetail
}

type bufferKey struct {
	role     relay.Role
	sourceID string
}

// Aggregator folds the relay events of one session into per-source buffers.
type Aggregator struct {
	mu        sync.Mutex
	sessionID string
	buffers   map[bufferKey]*Buffer
	order     []bufferKey
	finished  bool
	outcome   relay.Outcome
	errDetail *relay.ErrorDetail
	observers []func(Update)
	done      chan struct{}
}

type AggregatorOption func(*Aggregator)

// WithObserver registers a callback receiving every update. Observers are
// called synchronously in the applying goroutine.
func WithObserver(observer func(Update)) AggregatorOption {
	return func(a *Aggregator) {
		if observer != nil {
			a.observers = append(a.observers, observer)
		}
	}
}

func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		buffers: map[bufferKey]*Buffer{},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one event into the aggregated state. Events arriving after the
// terminator are ignored.
func (a *Aggregator) Apply(event relay.Event) {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		logger.Debug("ignoring event after terminator", "kind", event.Kind)
		return
	}

	update := Update{SessionID: a.sessionID, Kind: event.Kind}
	switch event.Kind {
	case relay.KindSession:
		if event.Session == nil {
			a.mu.Unlock()
			return
		}
		a.sessionID = event.Session.ID
		update.SessionID = a.sessionID

	case relay.KindFragment:
		if event.Fragment == nil {
			a.mu.Unlock()
			return
		}
		key := bufferKey{role: event.Fragment.Role, sourceID: event.Fragment.SourceID}
		buffer := a.bufferLocked(key)
		if !buffer.Append(event.Fragment.Text) {
			a.mu.Unlock()
			logger.Warn("dropping fragment for frozen buffer", "session", a.sessionID, "source", key.sourceID)
			return
		}
		update.Message = messageOf(key, buffer)

	case relay.KindSourceEnd:
		if event.SourceEnd == nil {
			a.mu.Unlock()
			return
		}
		end := event.SourceEnd
		key := bufferKey{role: end.Role, sourceID: end.SourceID}
		buffer := a.bufferLocked(key)
		buffer.Freeze(stateForStatus(end.Status), end.Error, end.Truncated)
		update.Message = messageOf(key, buffer)

	case relay.KindError:
		if event.Error == nil {
			a.mu.Unlock()
			return
		}
		detail := *event.Error
		a.errDetail = &detail
		update.Error = &detail

	case relay.KindDone:
		outcome := relay.OutcomeCompleted
		if event.Done != nil {
			outcome = event.Done.Outcome
		}
		a.finishLocked(outcome)
		update.Outcome = outcome
		update.Error = a.errDetail

	default:
		a.mu.Unlock()
		logger.Warn("ignoring unknown event", "kind", event.Kind)
		return
	}
	observers := a.observers
	a.mu.Unlock()

	for _, observer := range observers {
		observer(update)
	}
}

// Consume applies every event read from r until the terminator. A stream
// stopped by ctx ends the session as cancelled, a stream ending early or
// failing ends it as failed.
func (a *Aggregator) Consume(ctx context.Context, r io.Reader) (relay.Outcome, error) {
	ctx, span := tracer.Start(ctx, "consume relay stream")
	defer span.End()

	for event, err := range relay.Events(ctx, r) {
		if err != nil {
			a.Apply(relay.DoneEvent(relay.OutcomeFailed))
			span.RecordError(err)
			return relay.OutcomeFailed, err
		}
		a.Apply(event)
	}

	if outcome, finished := a.Outcome(); finished {
		return outcome, nil
	}
	if ctx.Err() != nil {
		a.Apply(relay.DoneEvent(relay.OutcomeCancelled))
		return relay.OutcomeCancelled, nil
	}
	a.Apply(relay.DoneEvent(relay.OutcomeFailed))
	span.RecordError(ErrMissingTerminator)
	return relay.OutcomeFailed, ErrMissingTerminator
}

func (a *Aggregator) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.sessionID
}

// Outcome reports the terminal outcome once the terminator was applied.
func (a *Aggregator) Outcome() (relay.Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.outcome, a.finished
}

// Done is closed once the terminator was applied.
func (a *Aggregator) Done() <-chan struct{} { return a.done }

// Buffer returns the live buffer of a source.
func (a *Aggregator) Buffer(role relay.Role, sourceID string) (*Buffer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buffer, ok := a.buffers[bufferKey{role: role, sourceID: sourceID}]
	return buffer, ok
}

// Message returns a copy of a source's buffer.
func (a *Aggregator) Message(role relay.Role, sourceID string) (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := bufferKey{role: role, sourceID: sourceID}
	buffer, ok := a.buffers[key]
	if !ok {
		return Message{}, false
	}
	return *messageOf(key, buffer), true
}

// Messages returns copies of every buffer in first-fragment order.
func (a *Aggregator) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.messagesLocked()
}

// MessagesFor returns the messages of one role in first-fragment order.
func (a *Aggregator) MessagesFor(role relay.Role) []Message {
	var messages []Message
	for _, message := range a.Messages() {
		if message.Role == role {
			messages = append(messages, message)
		}
	}
	return messages
}

func (a *Aggregator) Snapshot() (Snapshot, error) {
	a.mu.Lock()
	current := Snapshot{
		SessionID: a.sessionID,
		Messages:  a.messagesLocked(),
		Finished:  a.finished,
		Outcome:   a.outcome,
		Error:     a.errDetail,
	}
	a.mu.Unlock()

	var snapshot Snapshot
	if err := copier.CopyWithOption(&snapshot, &current, copier.Option{DeepCopy: true}); err != nil {
		return Snapshot{}, fmt.Errorf("failed to copy snapshot: %w", err)
	}
	return snapshot, nil
}

func (a *Aggregator) bufferLocked(key bufferKey) *Buffer {
	buffer, ok := a.buffers[key]
	if !ok {
		buffer = NewBuffer()
		a.buffers[key] = buffer
		a.order = append(a.order, key)
	}
	return buffer
}

// finishLocked freezes every buffer still streaming. On cancellation the
// accumulated text is kept and labelled stopped.
func (a *Aggregator) finishLocked(outcome relay.Outcome) {
	state := StateComplete
	switch outcome {
	case relay.OutcomeCancelled:
		state = StateStopped
	case relay.OutcomeFailed:
		state = StateFailed
	}
	for _, key := range a.order {
		a.buffers[key].Freeze(state, "", false)
	}
	a.finished = true
	a.outcome = outcome
	close(a.done)
}

func (a *Aggregator) messagesLocked() []Message {
	messages := make([]Message, 0, len(a.order))
	for _, key := range a.order {
		messages = append(messages, *messageOf(key, a.buffers[key]))
	}
	return messages
}

func messageOf(key bufferKey, buffer *Buffer) *Message {
	text, state, errText, truncated := buffer.snapshot()
	return &Message{
		Role:      key.role,
		SourceID:  key.sourceID,
		Text:      text,
		State:     state,
		Error:     errText,
		Truncated: truncated,
	}
}

func stateForStatus(status string) State {
	switch llms.Status(status) {
	case llms.StatusOK:
		return StateComplete
	case llms.StatusCancelled:
		return StateStopped
	default:
		return StateFailed
	}
}
