// Package ingest turns the raw byte stream of one upstream call into a lazy
// sequence of content fragments and a single call result.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/PaulBappoo/Deeperseek/core/sse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const readBufferSize = 4096

var (
	ErrCallTimeout = errors.New("upstream call timed out")
	errNotFinished = errors.New("stream not finished")
)

// DecodeFunc interprets one framed record of an upstream stream.
type DecodeFunc func(sse.Record) (llms.Chunk, error)

type Ingestor struct {
	body     io.ReadCloser
	decode   DecodeFunc
	role     relay.Role
	sourceID string
	decoder  *sse.Decoder

	started atomic.Bool

	mu     sync.Mutex
	text   strings.Builder
	usage  *llms.Usage
	result *llms.CallResult
	done   chan struct{}
}

type Option func(*Ingestor)

// WithMaxPending bounds how many bytes may be buffered without a record
// boundary before the stream is considered broken.
func WithMaxPending(limit int) Option {
	return func(in *Ingestor) { in.decoder = in.decoder.WithMaxPending(limit) }
}

func New(body io.ReadCloser, decode DecodeFunc, role relay.Role, sourceID string, opts ...Option) *Ingestor {
	in := &Ingestor{
		body:     body,
		decode:   decode,
		role:     role,
		sourceID: sourceID,
		decoder:  sse.NewDecoder(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Fragments reads the stream and yields decoded fragments in order. ctx is
// the cancellation token: it is checked before every read and before every
// yield, and closes the body when it fires so blocked reads return promptly.
// Fragments may be ranged over once.
func (in *Ingestor) Fragments(ctx context.Context) func(yield func(relay.Fragment) bool) {
	return func(yield func(relay.Fragment) bool) {
		if !in.started.CompareAndSwap(false, true) {
			return
		}

		ctx, span := tracer.Start(ctx, "ingest stream", trace.WithAttributes(
			attribute.String("call.role", string(in.role)),
			attribute.String("call.source", in.sourceID),
		))
		defer span.End()
		defer in.body.Close()
		stop := context.AfterFunc(ctx, func() { in.body.Close() })
		defer stop()

		fragments := 0
		defer func() {
			result := in.Result()
			span.SetAttributes(
				attribute.Int("response.fragments", fragments),
				attribute.String("response.status", string(result.Status)),
				attribute.Bool("response.truncated", result.Truncated),
			)
			if result.Usage != nil {
				span.SetAttributes(
					attribute.Int("usage.input", result.Usage.InputTokens),
					attribute.Int("usage.output", result.Usage.OutputTokens),
					attribute.Int("usage.total", result.Usage.TotalTokens),
				)
			}
			if result.Err != nil {
				span.RecordError(result.Err)
				if result.Status == llms.StatusFailed {
					span.SetStatus(codes.Error, result.Err.Error())
				}
			}
		}()

		// emit returns false once the stream should stop being read.
		emit := func(records []sse.Record) bool {
			for _, rec := range records {
				chunk, err := in.decode(rec)
				if err != nil {
					logger.Warn("skipping undecodable record", "source", in.sourceID, "error", err)
					continue
				}
				if chunk.Usage != nil {
					in.setUsage(chunk.Usage)
				}
				if chunk.Done {
					in.finish(llms.StatusOK, false, nil)
					return false
				}
				if chunk.Content == "" {
					continue
				}

				if ctx.Err() != nil {
					in.finishStopped(ctx)
					return false
				}
				text, valid := relay.ValidText(chunk.Content)
				if !valid {
					logger.Warn("replaced invalid UTF-8 in upstream content", "source", in.sourceID)
				}
				in.appendText(text)
				fragments++
				if !yield(relay.Fragment{Role: in.role, SourceID: in.sourceID, Text: text}) {
					in.finish(llms.StatusCancelled, false, context.Canceled)
					return false
				}
			}
			return true
		}

		buf := make([]byte, readBufferSize)
		for {
			if ctx.Err() != nil {
				in.finishStopped(ctx)
				return
			}

			n, readErr := in.body.Read(buf)
			if ctx.Err() != nil {
				in.finishStopped(ctx)
				return
			}

			if n > 0 {
				records, err := in.decoder.Feed(buf[:n])
				if !emit(records) {
					return
				}
				if err != nil {
					in.finish(llms.StatusFailed, false, fmt.Errorf("stream framing failed: %w", err))
					return
				}
			}

			if readErr == nil {
				continue
			}
			if errors.Is(readErr, io.EOF) {
				records, truncated := in.decoder.Flush()
				if !emit(records) {
					return
				}
				in.finish(llms.StatusOK, truncated, nil)
				return
			}
			in.finish(llms.StatusFailed, false, &llms.TransportError{Op: "read stream", Err: readErr})
			return
		}
	}
}

// Result returns the call result. Before the stream finished it reports the
// text accumulated so far with a cancelled status.
func (in *Ingestor) Result() llms.CallResult {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.result != nil {
		return *in.result
	}
	return llms.CallResult{
		SourceID: in.sourceID,
		Status:   llms.StatusCancelled,
		Text:     in.text.String(),
		Err:      errNotFinished,
		Usage:    in.usage,
	}
}

// Done is closed once the result is final.
func (in *Ingestor) Done() <-chan struct{} { return in.done }

func (in *Ingestor) appendText(text string) {
	in.mu.Lock()
	in.text.WriteString(text)
	in.mu.Unlock()
}

func (in *Ingestor) setUsage(usage *llms.Usage) {
	in.mu.Lock()
	in.usage = usage
	in.mu.Unlock()
}

// finishStopped records the result of a call whose token fired. A deadline
// is an upstream failure, anything else is a cancellation.
func (in *Ingestor) finishStopped(ctx context.Context) {
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, ErrCallTimeout) {
		in.finish(llms.StatusFailed, false, ErrCallTimeout)
		return
	}
	in.finish(llms.StatusCancelled, false, cause)
}

func (in *Ingestor) finish(status llms.Status, truncated bool, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.result != nil {
		return
	}

	in.result = &llms.CallResult{
		SourceID:  in.sourceID,
		Status:    status,
		Text:      in.text.String(),
		Err:       err,
		Truncated: truncated,
		Usage:     in.usage,
	}
	if truncated {
		logger.Debug("stream ended on a partial record", "source", in.sourceID)
	}
	close(in.done)
}
