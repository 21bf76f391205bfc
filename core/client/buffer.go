package client

import (
	"context"
	"strings"
	"sync"
)

type State string

const (
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	// StateStopped marks a buffer frozen by a cancellation. Its text is kept.
	StateStopped State = "stopped"
)

// Buffer accumulates the fragments of one source. It is append-only until
// frozen, after which appends are rejected.
type Buffer struct {
	mu        sync.Mutex
	chunks    []string
	state     State
	errText   string
	truncated bool
	updated   chan struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{state: StateStreaming, updated: make(chan struct{})}
}

// Append adds chunk and reports whether the buffer still accepted it.
func (b *Buffer) Append(chunk string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateStreaming {
		return false
	}
	b.chunks = append(b.chunks, chunk)
	b.signalUpdate()
	return true
}

// Freeze ends the buffer with state. Only the first call has an effect.
func (b *Buffer) Freeze(state State, errText string, truncated bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateStreaming || state == StateStreaming {
		return false
	}
	b.state = state
	b.errText = errText
	b.truncated = truncated
	b.signalUpdate()
	return true
}

// Chunks yields every chunk in order, waiting for new ones until the buffer
// is frozen or ctx is done. Each call starts from the first chunk.
func (b *Buffer) Chunks(ctx context.Context) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		consumed := 0
		for {
			b.mu.Lock()
			if consumed < len(b.chunks) {
				chunk := b.chunks[consumed]
				consumed++
				b.mu.Unlock()
				if !yield(chunk) {
					return
				}
				continue
			}

			if b.state != StateStreaming {
				b.mu.Unlock()
				return
			}
			updated := b.updated
			b.mu.Unlock()

			select {
			case <-updated:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.chunks, "")
}

func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

func (b *Buffer) Frozen() bool { return b.State() != StateStreaming }

// signalUpdate wakes every waiting consumer. Callers hold mu.
func (b *Buffer) signalUpdate() {
	close(b.updated)
	b.updated = make(chan struct{})
}

func (b *Buffer) snapshot() (text string, state State, errText string, truncated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.chunks, ""), b.state, b.errText, b.truncated
}
