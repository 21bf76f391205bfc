package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/PaulBappoo/Deeperseek/core/events"
	"github.com/PaulBappoo/Deeperseek/core/ingest"
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// call issues one upstream call, relays its fragments and records its single
// result.
func (c *Coordinator) call(ctx context.Context, session *Session, role relay.Role, spec ModelSpec, turns []llms.Turn) llms.CallResult {
	ctx, span := tracer.Start(ctx, "upstream call", trace.WithAttributes(
		attribute.String("call.role", string(role)),
		attribute.String("call.source", spec.ID),
		attribute.String("call.model", spec.Model),
		attribute.Bool("call.streaming", spec.streams()),
	))
	defer span.End()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.callTimeout > 0 {
		callCtx, cancel = context.WithTimeoutCause(ctx, c.callTimeout, ingest.ErrCallTimeout)
	}
	defer cancel()

	c.emit(events.NewCallStarted(session.ID(), role, spec.ID, spec.Model, spec.streams()))
	result := c.safeCall(callCtx, session, role, spec, llms.Request{
		Model:  spec.Model,
		Turns:  turns,
		Stream: spec.streams(),
	})
	result.SourceID = spec.ID

	session.record(role, result)
	session.send(ctx, relay.SourceEndEvent(sourceEnd(role, result)))
	c.emit(events.NewCallFinished(session.ID(), role, result))

	span.SetAttributes(
		attribute.String("response.status", string(result.Status)),
		attribute.Int("response.length", len(result.Text)),
	)
	if result.Status == llms.StatusFailed {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, errorMessage(result.Err))
		logger.Warn("upstream call failed", "session", session.ID(), "source", spec.ID, "error", result.Err)
	}
	return result
}

// failedCall records a call that could not be issued at all.
func (c *Coordinator) failedCall(ctx context.Context, session *Session, role relay.Role, spec ModelSpec, err error) llms.CallResult {
	result := llms.CallResult{SourceID: spec.ID, Status: llms.StatusFailed, Err: err}
	session.record(role, result)
	session.send(ctx, relay.SourceEndEvent(sourceEnd(role, result)))
	c.emit(events.NewCallFinished(session.ID(), role, result))
	logger.Warn("upstream call not issued", "session", session.ID(), "source", spec.ID, "error", err)
	return result
}

func (c *Coordinator) safeCall(ctx context.Context, session *Session, role relay.Role, spec ModelSpec, req llms.Request) (result llms.CallResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = llms.CallResult{
				Status: llms.StatusFailed,
				Err:    fmt.Errorf("%s call panicked: %v", spec.ID, recovered),
			}
		}
	}()

	if spec.streams() {
		return c.stream(ctx, session, role, spec, req)
	}
	return c.complete(ctx, session, role, spec, req)
}

func (c *Coordinator) stream(ctx context.Context, session *Session, role relay.Role, spec ModelSpec, req llms.Request) llms.CallResult {
	body, err := spec.Streamer.Open(ctx, req)
	if err != nil {
		status, err := classify(ctx, err)
		return llms.CallResult{Status: status, Err: err}
	}

	ingestor := ingest.New(body, spec.Streamer.DecodeChunk, role, spec.ID, ingest.WithMaxPending(c.maxPending))
	for fragment := range ingestor.Fragments(ctx) {
		session.send(ctx, relay.Event{Kind: relay.KindFragment, Fragment: &fragment})
	}
	return ingestor.Result()
}

// complete issues a non-streaming call and relays its text as one fragment.
func (c *Coordinator) complete(ctx context.Context, session *Session, role relay.Role, spec ModelSpec, req llms.Request) llms.CallResult {
	text, err := spec.Completer.Complete(ctx, req)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		status, err := classify(ctx, err)
		return llms.CallResult{Status: status, Err: err}
	}

	text, valid := relay.ValidText(text)
	if !valid {
		logger.Warn("replaced invalid UTF-8 in upstream content", "session", session.ID(), "source", spec.ID)
	}
	if text != "" {
		session.send(ctx, relay.FragmentEvent(role, spec.ID, text))
	}
	return llms.CallResult{Status: llms.StatusOK, Text: text}
}

// classify maps a call error to its status. Errors caused by the session
// being cancelled are cancellations, anything else including a call timeout
// is a failure.
func classify(ctx context.Context, err error) (llms.Status, error) {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return llms.StatusFailed, err
	case errors.Is(cause, ingest.ErrCallTimeout), errors.Is(cause, context.DeadlineExceeded):
		return llms.StatusFailed, ingest.ErrCallTimeout
	default:
		return llms.StatusCancelled, cause
	}
}

func sourceEnd(role relay.Role, result llms.CallResult) relay.SourceEnd {
	end := relay.SourceEnd{
		Role:      role,
		SourceID:  result.SourceID,
		Status:    string(result.Status),
		Truncated: result.Truncated,
	}
	if result.Err != nil {
		end.Error = result.Err.Error()
	}
	return end
}
