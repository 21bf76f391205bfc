package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/PaulBappoo/Deeperseek/core/sse"
)

func decodeText(rec sse.Record) (llms.Chunk, error) {
	switch string(rec.Data) {
	case "[DONE]":
		return llms.Chunk{Done: true}, nil
	case "{bad":
		return llms.Chunk{}, errors.New("malformed payload")
	}
	return llms.Chunk{Content: string(rec.Data)}, nil
}

// chunkedReader returns its data in fixed pieces, then err.
type chunkedReader struct {
	pieces [][]byte
	err    error
	reads  atomic.Int32
	closed atomic.Bool
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	r.reads.Add(1)
	if len(r.pieces) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.pieces[0])
	if n == len(r.pieces[0]) {
		r.pieces = r.pieces[1:]
	} else {
		r.pieces[0] = r.pieces[0][n:]
	}
	return n, nil
}

func (r *chunkedReader) Close() error {
	r.closed.Store(true)
	return nil
}

func wire(texts ...string) []byte {
	var out []byte
	for _, text := range texts {
		out = sse.AppendRecord(out, sse.Record{Data: []byte(text)})
	}
	return out
}

func collect(ctx context.Context, in *Ingestor) []string {
	var texts []string
	for fragment := range in.Fragments(ctx) {
		texts = append(texts, fragment.Text)
	}
	return texts
}

func TestFragmentsAreChunkBoundaryInvariant(t *testing.T) {
	stream := wire("The sky ", "is\nblue", ".", "[DONE]")

	for split := 0; split <= len(stream); split++ {
		body := &chunkedReader{pieces: [][]byte{stream[:split], stream[split:]}}
		in := New(body, decodeText, relay.RolePrimary, "primary")

		texts := collect(context.Background(), in)
		if strings.Join(texts, "|") != "The sky |is\nblue|." {
			t.Fatalf("split %d: unexpected fragments %q", split, texts)
		}

		result := in.Result()
		if result.Status != llms.StatusOK || result.Text != "The sky is\nblue." {
			t.Fatalf("split %d: unexpected result %+v", split, result)
		}
		if !body.closed.Load() {
			t.Fatalf("split %d: expected body to be closed", split)
		}
	}
}

func TestFragmentsAreTaggedWithRoleAndSource(t *testing.T) {
	in := New(&chunkedReader{pieces: [][]byte{wire("ok")}}, decodeText, relay.RoleAnalysis, "critic")

	for fragment := range in.Fragments(context.Background()) {
		if fragment.Role != relay.RoleAnalysis || fragment.SourceID != "critic" {
			t.Fatalf("unexpected fragment tags %+v", fragment)
		}
	}
}

func TestCancelledTokenStopsBeforeReading(t *testing.T) {
	body := &chunkedReader{pieces: [][]byte{wire("never")}}
	in := New(body, decodeText, relay.RolePrimary, "primary")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if texts := collect(ctx, in); len(texts) != 0 {
		t.Fatalf("expected no fragments, got %q", texts)
	}
	if body.reads.Load() != 0 {
		t.Fatalf("expected no reads after cancellation, got %d", body.reads.Load())
	}
	if status := in.Result().Status; status != llms.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", status)
	}
}

func TestCancellationUnblocksPendingRead(t *testing.T) {
	reader, writer := io.Pipe()
	in := New(reader, decodeText, relay.RoleAnalysis, "critic")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 4)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for fragment := range in.Fragments(ctx) {
			received <- fragment.Text
		}
	}()

	go func() { _, _ = writer.Write(wire("partial")) }()

	select {
	case text := <-received:
		if text != "partial" {
			t.Fatalf("unexpected fragment %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for first fragment")
	}

	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ingestor to stop")
	}

	result := in.Result()
	if result.Status != llms.StatusCancelled || result.Text != "partial" {
		t.Fatalf("expected cancelled result with partial text, got %+v", result)
	}
	select {
	case <-in.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}
}

func TestCallTimeoutIsAFailure(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()
	in := New(reader, decodeText, relay.RoleAnalysis, "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	collect(ctx, in)

	result := in.Result()
	if result.Status != llms.StatusFailed || !errors.Is(result.Err, ErrCallTimeout) {
		t.Fatalf("expected timeout failure, got %+v", result)
	}
}

func TestTransportFailureKeepsAccumulatedText(t *testing.T) {
	body := &chunkedReader{pieces: [][]byte{wire("The sky ")}, err: io.ErrUnexpectedEOF}
	in := New(body, decodeText, relay.RolePrimary, "primary")

	collect(context.Background(), in)

	result := in.Result()
	if result.Status != llms.StatusFailed || result.Text != "The sky " {
		t.Fatalf("unexpected result %+v", result)
	}
	var transportErr *llms.TransportError
	if !errors.As(result.Err, &transportErr) || !errors.Is(result.Err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected transport error, got %v", result.Err)
	}
}

func TestEOFDiscardsPartialTrailingRecord(t *testing.T) {
	stream := append(wire("complete"), []byte("data: incompl")...)
	in := New(&chunkedReader{pieces: [][]byte{stream}}, decodeText, relay.RoleSynthesis, "synthesis")

	texts := collect(context.Background(), in)
	if len(texts) != 1 || texts[0] != "complete" {
		t.Fatalf("unexpected fragments %q", texts)
	}

	result := in.Result()
	if result.Status != llms.StatusOK || !result.Truncated || result.Text != "complete" {
		t.Fatalf("expected degraded success, got %+v", result)
	}
}

func TestMalformedRecordIsSkipped(t *testing.T) {
	in := New(&chunkedReader{pieces: [][]byte{wire("a", "{bad", "b", "[DONE]")}}, decodeText, relay.RolePrimary, "primary")

	if texts := collect(context.Background(), in); strings.Join(texts, "") != "ab" {
		t.Fatalf("unexpected fragments %q", texts)
	}
	if status := in.Result().Status; status != llms.StatusOK {
		t.Fatalf("expected ok status, got %s", status)
	}
}

func TestDoneRecordStopsReading(t *testing.T) {
	body := &chunkedReader{pieces: [][]byte{wire("a", "[DONE]"), wire("after")}}
	in := New(body, decodeText, relay.RolePrimary, "primary")

	if texts := collect(context.Background(), in); len(texts) != 1 {
		t.Fatalf("expected reading to stop at the end record, got %q", texts)
	}
	if body.reads.Load() != 1 {
		t.Fatalf("expected exactly one read, got %d", body.reads.Load())
	}
}

func TestMissingRecordBoundaryFailsTheCall(t *testing.T) {
	body := &chunkedReader{pieces: [][]byte{[]byte(strings.Repeat("x", 64))}}
	in := New(body, decodeText, relay.RolePrimary, "primary", WithMaxPending(32))

	collect(context.Background(), in)

	result := in.Result()
	if result.Status != llms.StatusFailed || !errors.Is(result.Err, sse.ErrFrameTooLarge) {
		t.Fatalf("expected framing failure, got %+v", result)
	}
}

func TestFragmentsCanOnlyBeConsumedOnce(t *testing.T) {
	in := New(&chunkedReader{pieces: [][]byte{wire("a")}}, decodeText, relay.RolePrimary, "primary")

	collect(context.Background(), in)
	if texts := collect(context.Background(), in); len(texts) != 0 {
		t.Fatalf("expected second range to yield nothing, got %q", texts)
	}
	if in.Result().Text != "a" {
		t.Fatalf("expected first result to be kept")
	}
}
