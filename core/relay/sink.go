package relay

import (
	"context"
	"slices"
	"sync"
)

// Sink receives the relay events of one session. Implementations serialise
// concurrent Send calls so records never interleave.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Send(ctx context.Context, event Event) error { return f(ctx, event) }

// Recorder is an in-memory Sink keeping every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify func(Event)
}

func NewRecorder() *Recorder { return &Recorder{} }

// OnEvent registers a callback invoked synchronously for every event after it
// was recorded.
func (r *Recorder) OnEvent(notify func(Event)) {
	r.mu.Lock()
	r.notify = notify
	r.mu.Unlock()
}

func (r *Recorder) Send(_ context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify(event)
	}
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *Recorder) Fragments() []Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fragments []Fragment
	for _, event := range r.events {
		if event.Kind == KindFragment {
			fragments = append(fragments, *event.Fragment)
		}
	}
	return fragments
}
