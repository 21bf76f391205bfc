package client

import (
	"slices"
	"sync"
)

// DefaultFinishedRetention is how many finished sessions a store keeps.
const DefaultFinishedRetention = 32

// Store keeps the aggregators of concurrent sessions keyed by session id.
// Running sessions stay until deleted; finished ones are evicted oldest first
// beyond the retention limit.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Aggregator
	finished []string
	retain   int
}

type StoreOption func(*Store)

// WithFinishedRetention sets how many finished sessions are kept. Zero drops
// a session as soon as it finishes; negative values restore the default.
func WithFinishedRetention(limit int) StoreOption {
	return func(s *Store) {
		if limit < 0 {
			limit = DefaultFinishedRetention
		}
		s.retain = limit
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{sessions: map[string]*Aggregator{}, retain: DefaultFinishedRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put registers aggregator under sessionID, replacing any previous entry.
func (s *Store) Put(sessionID string, aggregator *Aggregator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = aggregator
}

func (s *Store) Get(sessionID string) (*Aggregator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggregator, ok := s.sessions[sessionID]
	return aggregator, ok
}

func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	s.finished = slices.DeleteFunc(s.finished, func(id string) bool { return id == sessionID })
}

// Finish marks a stored session as finished and evicts the oldest finished
// sessions beyond the retention limit.
func (s *Store) Finish(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok || slices.Contains(s.finished, sessionID) {
		return
	}
	s.finished = append(s.finished, sessionID)
	for len(s.finished) > s.retain {
		delete(s.sessions, s.finished[0])
		s.finished = s.finished[1:]
	}
}

// IDs returns the stored session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
