package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/sse"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	// DefaultWriteTimeout bounds a single record write to the client.
	DefaultWriteTimeout = 10 * time.Second
)

var (
	ErrNoFlusher    = errors.New("response writer does not support flushing")
	ErrWriterClosed = errors.New("relay writer closed")
)

// StreamWriter relays events as SSE records over an HTTP response.
type StreamWriter struct {
	mu           sync.Mutex
	writer       http.ResponseWriter
	flusher      http.Flusher
	controller   *http.ResponseController
	writeTimeout time.Duration
	closed       bool
}

type StreamWriterOption func(*StreamWriter)

// WithWriteTimeout overrides how long one record may take to reach the
// client. Non-positive values restore the default.
func WithWriteTimeout(timeout time.Duration) StreamWriterOption {
	return func(s *StreamWriter) {
		if timeout > 0 {
			s.writeTimeout = timeout
		}
	}
}

// NewStreamWriter sends the event stream headers and returns a writer ready
// for Send.
func NewStreamWriter(w http.ResponseWriter, opts ...StreamWriterOption) (*StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-store")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher.Flush()
	s := &StreamWriter{
		writer:       w,
		flusher:      flusher,
		controller:   http.NewResponseController(w),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *StreamWriter) Send(_ context.Context, event Event) error {
	record, err := event.Record()
	if err != nil {
		return err
	}
	return s.write(sse.Encode(record))
}

// Comment writes an SSE comment, used as a keep-alive for idle streams.
func (s *StreamWriter) Comment(text string) error {
	return s.write(sse.Comment(text))
}

func (s *StreamWriter) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrWriterClosed
	}
	s.setWriteDeadline(time.Now().Add(s.writeTimeout))
	if _, err := s.writer.Write(payload); err != nil {
		s.closed = true
		return fmt.Errorf("failed to write relay record: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// setWriteDeadline is best effort: writers without deadline support are
// written without one.
func (s *StreamWriter) setWriteDeadline(deadline time.Time) {
	if err := s.controller.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("failed to set relay write deadline", "error", err)
	}
}

// Close stops any further writes and waits for a write in progress. It does
// not close the underlying response.
func (s *StreamWriter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.setWriteDeadline(time.Time{})
	}
}

// KeepAlive writes a ping comment every interval until ctx is done or a write
// fails.
func (s *StreamWriter) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Comment("ping"); err != nil {
				return
			}
		}
	}
}
