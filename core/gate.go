package orchestration

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrCancelled is the cancellation cause of a session stopped on request.
	ErrCancelled = errors.New("session cancelled")

	errSessionEnded = errors.New("session ended")
)

// Gate is the single cancellation signal shared by every in-flight call of a
// session and its downstream relay.
type Gate struct {
	ctx       context.Context
	cancel    context.CancelCauseFunc
	cancelled atomic.Bool
	stop      func() bool
}

// NewGate returns an open gate. Values of parent are kept, and cancelling
// parent cancels the gate.
func NewGate(parent context.Context) *Gate {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	g := &Gate{ctx: ctx, cancel: cancel}
	g.stop = context.AfterFunc(parent, func() { g.Cancel() })
	return g
}

// Cancel triggers the gate. It is idempotent and reports whether this call
// was the one that cancelled.
func (g *Gate) Cancel() bool {
	if !g.cancelled.CompareAndSwap(false, true) {
		return false
	}
	g.cancel(ErrCancelled)
	return true
}

func (g *Gate) Cancelled() bool { return g.cancelled.Load() }

// Done is closed once the gate was cancelled or released.
func (g *Gate) Done() <-chan struct{} { return g.ctx.Done() }

// Context is the token passed to every call of the session.
func (g *Gate) Context() context.Context { return g.ctx }

// release frees the gate's resources without marking it cancelled.
func (g *Gate) release() {
	g.stop()
	g.cancel(errSessionEnded)
}
