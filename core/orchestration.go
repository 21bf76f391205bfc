// Package orchestration answers one query with a primary streaming call, a
// fan-out of analysis calls over the primary answer and a synthesis call
// merging them, all relayed onto a single downstream event stream.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/events"
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs sessions against a fixed set of models. It is safe for
// concurrent use; every session is independent.
type Coordinator struct {
	primary     *ModelSpec
	secondaries []ModelSpec
	synthesis   *ModelSpec

	callTimeout    time.Duration
	secondaryLimit int
	maxPending     int
	relayTimeout   time.Duration

	registry  *Registry
	callbacks callbacks
	emit      eventEmitter
}

// NewCoordinator builds a coordinator. A primary and a synthesis model are
// required and model ids must be unique.
func NewCoordinator(opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{registry: NewRegistry()}
	for _, opt := range opts {
		opt(c)
	}

	if c.primary == nil {
		return nil, ErrNoPrimary
	}
	if c.primary.Streamer == nil {
		return nil, fmt.Errorf("primary model %q must support streaming", c.primary.ID)
	}
	if c.synthesis == nil {
		return nil, ErrNoSynthesis
	}

	seen := map[string]bool{}
	specs := append([]ModelSpec{*c.primary, *c.synthesis}, c.secondaries...)
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("model id %q is used more than once", spec.ID)
		}
		seen[spec.ID] = true
	}

	c.emit = newCallbackEventEmitter(c.callbacks)
	return c, nil
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// NewSession creates and registers a session relaying to sink. Cancelling ctx
// cancels the session.
func (c *Coordinator) NewSession(ctx context.Context, sink relay.Sink) *Session {
	session := newSession(ctx, sink, c.relayTimeout)
	c.registry.add(session)
	return session
}

// Orchestrate answers turns on a new session and blocks until its terminator
// was relayed.
func (c *Coordinator) Orchestrate(ctx context.Context, sink relay.Sink, turns []llms.Turn) (*Session, relay.Outcome) {
	session := c.NewSession(ctx, sink)
	return session, c.Run(session, turns)
}

// Run drives session through the primary, secondary and synthesis phases and
// blocks until the terminator was relayed. Every path relays exactly one
// terminator.
//
// Contract: call Run once per session. Later calls only wait for the first
// one to end.
func (c *Coordinator) Run(session *Session, turns []llms.Turn) relay.Outcome {
	if !session.started.CompareAndSwap(false, true) {
		logger.Warn("session already running", "session", session.ID())
		<-session.Done()
		return outcomeFor(session.State())
	}

	ctx, span := tracer.Start(session.gate.Context(), "orchestrate query",
		trace.WithAttributes(attribute.String("session.id", session.ID())))
	defer span.End()
	defer c.registry.remove(session.ID())

	outcome, err := c.run(ctx, session, turns)

	session.finish(context.WithoutCancel(ctx), outcome, err)
	span.SetAttributes(attribute.String("session.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logger.Info("session ended", "session", session.ID(), "outcome", outcome)
	c.emit(events.NewSessionEnded(session.ID(), outcome, err))
	return outcome
}

func (c *Coordinator) run(ctx context.Context, session *Session, turns []llms.Turn) (relay.Outcome, error) {
	session.send(ctx, relay.SessionEvent(session.ID()))

	if err := llms.ValidateTurns(turns); err != nil {
		session.send(ctx, relay.ErrorEvent(relay.ErrorCodeInvalidRequest, err.Error()))
		return relay.OutcomeFailed, err
	}
	query := llms.LastUserText(turns)
	c.emit(events.NewSessionStarted(session.ID(), query))

	if session.Cancelled() {
		return relay.OutcomeCancelled, nil
	}
	c.emit(events.NewPhaseStarted(session.ID(), events.PhasePrimary))
	var primary llms.CallResult
	if prompt, err := primaryTurns(c.primary.Instruction, turns); err != nil {
		primary = c.failedCall(ctx, session, relay.RolePrimary, *c.primary, err)
	} else {
		primary = c.call(ctx, session, relay.RolePrimary, *c.primary, prompt)
	}
	if session.Cancelled() {
		return relay.OutcomeCancelled, nil
	}
	if !primary.OK() {
		if primary.Text == "" {
			session.send(ctx, relay.ErrorEvent(relay.ErrorCodePrimaryUnavailable, errorMessage(primary.Err)))
			return relay.OutcomeFailed, wrapCause(ErrPrimaryUnavailable, primary.Err)
		}
		logger.Warn("continuing with partial primary answer", "session", session.ID(), "error", primary.Err)
	}

	analyses := c.fanOut(ctx, session, query, primary.Text)
	if session.Cancelled() {
		return relay.OutcomeCancelled, nil
	}

	c.emit(events.NewPhaseStarted(session.ID(), events.PhaseSynthesis))
	synthesisPrompt, err := synthesisTurns(query, primary.Text, c.synthesis.Instruction, analyses)
	if err != nil {
		session.send(ctx, relay.ErrorEvent(relay.ErrorCodeSynthesisUnavailable, err.Error()))
		return relay.OutcomeFailed, wrapCause(ErrSynthesisUnavailable, err)
	}
	synthesis := c.call(ctx, session, relay.RoleSynthesis, *c.synthesis, synthesisPrompt)
	if session.Cancelled() {
		return relay.OutcomeCancelled, nil
	}
	if !synthesis.OK() {
		session.send(ctx, relay.ErrorEvent(relay.ErrorCodeSynthesisUnavailable, errorMessage(synthesis.Err)))
		return relay.OutcomeFailed, wrapCause(ErrSynthesisUnavailable, synthesis.Err)
	}
	return relay.OutcomeCompleted, nil
}

// fanOut runs every secondary call concurrently and joins them all, or
// returns early once the session is cancelled. Failures are recorded and
// never abort siblings.
func (c *Coordinator) fanOut(ctx context.Context, session *Session, query, primaryText string) []llms.CallResult {
	if len(c.secondaries) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "secondary phase")
	defer span.End()
	c.emit(events.NewPhaseStarted(session.ID(), events.PhaseSecondary))

	var (
		resultsMu sync.Mutex
		results   = make([]llms.CallResult, 0, len(c.secondaries))
	)
	addResult := func(result llms.CallResult) {
		resultsMu.Lock()
		results = append(results, result)
		resultsMu.Unlock()
	}

	group := &errgroup.Group{}
	if c.secondaryLimit > 0 {
		group.SetLimit(c.secondaryLimit)
	}
	for _, spec := range c.secondaries {
		if session.Cancelled() {
			break
		}

		turns, err := analysisTurns(query, primaryText, spec.Instruction)
		if err != nil {
			addResult(c.failedCall(ctx, session, relay.RoleAnalysis, spec, err))
			continue
		}

		session.calls.Add(1)
		group.Go(func() error {
			defer session.calls.Done()
			addResult(c.call(ctx, session, relay.RoleAnalysis, spec, turns))
			return nil
		})
	}

	// Workers never return an error, failures are collected from results.
	joined := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-session.gate.Done():
		span.AddEvent("join abandoned")
		return nil
	}

	resultsMu.Lock()
	defer resultsMu.Unlock()

	var failures []error
	for _, result := range results {
		if !result.OK() {
			failures = append(failures, &SecondaryFailedError{SourceID: result.SourceID, Err: result.Err})
		}
	}
	if len(failures) > 0 {
		err := errors.Join(failures...)
		span.RecordError(err)
		logger.Warn("secondary calls failed", "session", session.ID(), "failed", len(failures), "error", err)
	}
	span.SetAttributes(attribute.Int("secondary.failed", len(failures)))

	ordered := make([]llms.CallResult, 0, len(results))
	for _, spec := range c.secondaries {
		for _, result := range results {
			if result.SourceID == spec.ID {
				ordered = append(ordered, result)
			}
		}
	}
	return ordered
}

func outcomeFor(state State) relay.Outcome {
	switch state {
	case StateCompleted:
		return relay.OutcomeCompleted
	case StateCancelled:
		return relay.OutcomeCancelled
	default:
		return relay.OutcomeFailed
	}
}

func wrapCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
