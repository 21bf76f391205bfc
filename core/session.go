package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/google/uuid"
)

// DefaultRelayTimeout bounds a single downstream write.
const DefaultRelayTimeout = 10 * time.Second

var errRelayStalled = errors.New("downstream relay stalled")

// State is the lifecycle state of a session. Every state but StateRunning is
// terminal.
type State int32

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func stateFor(outcome relay.Outcome) State {
	switch outcome {
	case relay.OutcomeCompleted:
		return StateCompleted
	case relay.OutcomeCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}

// Session owns the gate, the downstream relay and the call results of one
// query. It is never reused.
type Session struct {
	id   string
	gate *Gate
	sink relay.Sink

	// relayMu serialises writes to sink and guards terminated and stalled.
	relayMu      sync.Mutex
	terminated   bool
	relayTimeout time.Duration
	// stalled is closed once an abandoned sink write returns.
	stalled <-chan struct{}

	resultsMu sync.Mutex
	results   []sessionResult

	started atomic.Bool
	calls   sync.WaitGroup
	settled chan struct{}

	state atomic.Int32
	err   error
	done  chan struct{}
}

type sessionResult struct {
	role   relay.Role
	result llms.CallResult
}

func newSession(ctx context.Context, sink relay.Sink, relayTimeout time.Duration) *Session {
	if relayTimeout <= 0 {
		relayTimeout = DefaultRelayTimeout
	}
	return &Session{
		id:           uuid.NewString(),
		gate:         NewGate(ctx),
		sink:         sink,
		relayTimeout: relayTimeout,
		settled:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Cancel stops the session. It is safe to call at any time and any number of
// times; the terminator is still relayed.
func (s *Session) Cancel() {
	if s.gate.Cancel() {
		logger.Info("session cancelled", "session", s.id)
	}
}

func (s *Session) Cancelled() bool { return s.gate.Cancelled() }

func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the failure of a failed session.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Done is closed after the terminator was relayed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Settled is closed once every launched call has produced its result,
// including calls abandoned by a cancellation.
func (s *Session) Settled() <-chan struct{} { return s.settled }

// Results returns the call results recorded so far in completion order.
func (s *Session) Results() []llms.CallResult {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	results := make([]llms.CallResult, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, r.result)
	}
	return results
}

// Result returns the recorded result of sourceID.
func (s *Session) Result(sourceID string) (llms.CallResult, bool) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	for _, r := range s.results {
		if r.result.SourceID == sourceID {
			return r.result, true
		}
	}
	return llms.CallResult{}, false
}

func (s *Session) record(role relay.Role, result llms.CallResult) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	for _, r := range s.results {
		if r.result.SourceID == result.SourceID {
			logger.Error("call result recorded twice", "session", s.id, "source", result.SourceID)
			return
		}
	}
	s.results = append(s.results, sessionResult{role: role, result: result})
}

// send relays one event downstream. After cancellation only the terminator
// passes. A failing downstream cancels the session since nobody is reading.
func (s *Session) send(ctx context.Context, event relay.Event) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	if s.terminated {
		return
	}
	if s.gate.Cancelled() && !event.IsTerminator() {
		return
	}

	err := s.deliver(ctx, event, s.gate.Done())
	switch {
	case err == nil:
	case errors.Is(err, errRelayStalled) && s.gate.Cancelled():
		logger.Debug("abandoned downstream write", "session", s.id, "kind", event.Kind)
	default:
		logger.Warn("downstream relay failed", "session", s.id, "kind", event.Kind, "error", err)
		s.gate.Cancel()
	}
}

// deliver writes event to the sink without letting a stalled downstream hold
// the session: it gives up when abort is closed or the relay timeout passes.
// An abandoned write keeps running; later writes wait for it first so the
// sink never sees two concurrent calls. Callers hold relayMu.
func (s *Session) deliver(ctx context.Context, event relay.Event, abort <-chan struct{}) error {
	timer := time.NewTimer(s.relayTimeout)
	defer timer.Stop()

	if s.stalled != nil {
		select {
		case <-s.stalled:
			s.stalled = nil
		case <-abort:
			return errRelayStalled
		case <-timer.C:
			return errRelayStalled
		}
	}

	var err error
	written := make(chan struct{})
	go func() {
		defer close(written)
		err = s.sink.Send(ctx, event)
	}()

	select {
	case <-written:
		return err
	case <-abort:
	case <-timer.C:
	}
	s.stalled = written
	return errRelayStalled
}

// finish relays the terminator exactly once and sets the terminal state.
func (s *Session) finish(ctx context.Context, outcome relay.Outcome, err error) bool {
	s.relayMu.Lock()
	if s.terminated {
		s.relayMu.Unlock()
		return false
	}
	if s.stalled != nil {
		select {
		case <-s.stalled:
			s.stalled = nil
		default:
		}
	}
	if s.stalled != nil {
		logger.Warn("downstream stalled, terminator not relayed", "session", s.id)
	} else if sendErr := s.deliver(ctx, relay.DoneEvent(outcome), nil); sendErr != nil {
		logger.Warn("failed to relay terminator", "session", s.id, "error", sendErr)
	}
	s.terminated = true
	s.relayMu.Unlock()

	s.err = err
	s.state.Store(int32(stateFor(outcome)))
	close(s.done)

	go func() {
		s.calls.Wait()
		s.gate.release()
		close(s.settled)
	}()
	return true
}
