package orchestration

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/PaulBappoo/Deeperseek/core/sse"
)

var errUpstreamDown = errors.New("upstream down")

// scriptedStreamer serves a fixed list of fragments as an event stream.
type scriptedStreamer struct {
	fragments []string
	delay     time.Duration
	openErr   error
	// failWith ends the stream with a read error instead of the end record.
	failWith error
	// hang keeps the stream open after the fragments until the call stops.
	hang bool

	opened   atomic.Int32
	mu       sync.Mutex
	requests []llms.Request
}

func (s *scriptedStreamer) Open(ctx context.Context, req llms.Request) (io.ReadCloser, error) {
	s.opened.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}

	reader, writer := io.Pipe()
	go func() {
		for _, fragment := range s.fragments {
			if s.delay > 0 {
				select {
				case <-ctx.Done():
					writer.CloseWithError(ctx.Err())
					return
				case <-time.After(s.delay):
				}
			}
			if _, err := writer.Write(sse.Encode(sse.Record{Data: []byte(fragment)})); err != nil {
				return
			}
		}
		switch {
		case s.failWith != nil:
			writer.CloseWithError(s.failWith)
		case s.hang:
			<-ctx.Done()
			writer.CloseWithError(ctx.Err())
		default:
			_, _ = writer.Write(sse.Encode(sse.Record{Data: []byte("[DONE]")}))
			writer.Close()
		}
	}()
	return reader, nil
}

func (s *scriptedStreamer) DecodeChunk(rec sse.Record) (llms.Chunk, error) {
	if string(rec.Data) == "[DONE]" {
		return llms.Chunk{Done: true}, nil
	}
	return llms.Chunk{Content: string(rec.Data)}, nil
}

func (s *scriptedStreamer) lastRequest() llms.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return llms.Request{}
	}
	return s.requests[len(s.requests)-1]
}

type scriptedCompleter struct {
	text  string
	err   error
	delay time.Duration
	panic bool

	called atomic.Int32
}

func (c *scriptedCompleter) Complete(ctx context.Context, _ llms.Request) (string, error) {
	c.called.Add(1)
	if c.panic {
		panic("completer exploded")
	}
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.delay):
		}
	}
	return c.text, c.err
}

type failingSink struct {
	failAfter int
	sent      atomic.Int32
}

func (s *failingSink) Send(context.Context, relay.Event) error {
	if int(s.sent.Add(1)) > s.failAfter {
		return errors.New("client went away")
	}
	return nil
}

// stalledSink accepts the first passes events and then blocks every Send
// until unblock is closed, like a client that stopped reading.
type stalledSink struct {
	passes   int32
	unblock  chan struct{}
	sent     atomic.Int32
	inFlight atomic.Int32
	overlaps atomic.Int32
}

func newStalledSink(passes int32) *stalledSink {
	return &stalledSink{passes: passes, unblock: make(chan struct{})}
}

func (s *stalledSink) Send(context.Context, relay.Event) error {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	defer s.inFlight.Add(-1)

	if s.sent.Add(1) > s.passes {
		<-s.unblock
		return errors.New("client connection timed out")
	}
	return nil
}

func userTurns(query string) []llms.Turn {
	return []llms.Turn{{Speaker: llms.SpeakerUser, Text: query}}
}

// phaseOf maps every relayed event to the phase it belongs to so ordering
// between roles can be checked.
func phaseOf(event relay.Event) relay.Role {
	switch event.Kind {
	case relay.KindFragment:
		return event.Fragment.Role
	case relay.KindSourceEnd:
		return event.SourceEnd.Role
	}
	return ""
}

func fragmentText(events []relay.Event, role relay.Role, sourceID string) string {
	var text string
	for _, event := range events {
		if event.Kind == relay.KindFragment && event.Fragment.Role == role && event.Fragment.SourceID == sourceID {
			text += event.Fragment.Text
		}
	}
	return text
}

func sourceEndOf(events []relay.Event, sourceID string) (relay.SourceEnd, bool) {
	for _, event := range events {
		if event.Kind == relay.KindSourceEnd && event.SourceEnd.SourceID == sourceID {
			return *event.SourceEnd, true
		}
	}
	return relay.SourceEnd{}, false
}

func waitSettled(session *Session) bool {
	select {
	case <-session.Settled():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}
