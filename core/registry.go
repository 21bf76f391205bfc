package orchestration

import (
	"sync"
)

// Registry tracks the running sessions so they can be cancelled out of band.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func (r *Registry) add(session *Session) {
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Cancel cancels the running session id.
func (r *Registry) Cancel(id string) error {
	session, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	session.Cancel()
	return nil
}

// CancelAll cancels every running session, used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.Cancel()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
