package events

import (
	"github.com/PaulBappoo/Deeperseek/core/relay"
)

const (
	// KindSessionStarted identifies an accepted query.
	KindSessionStarted Kind = "session.started"
	// KindPhaseStarted identifies the start of an orchestration phase.
	KindPhaseStarted Kind = "session.phase_started"
	// KindSessionEnded identifies the terminal outcome of a session.
	KindSessionEnded Kind = "session.ended"
)

type Phase string

const (
	PhasePrimary   Phase = "primary"
	PhaseSecondary Phase = "secondary"
	PhaseSynthesis Phase = "synthesis"
)

// SessionStarted carries the query a session answers.
type SessionStarted struct {
	Base
	Query string
}

// NewSessionStarted creates a session started event.
func NewSessionStarted(sessionID, query string) SessionStarted {
	return SessionStarted{Base: NewBase(KindSessionStarted, sessionID), Query: query}
}

// PhaseStarted marks the beginning of a phase.
type PhaseStarted struct {
	Base
	Phase Phase
}

// NewPhaseStarted creates a phase started event.
func NewPhaseStarted(sessionID string, phase Phase) PhaseStarted {
	return PhaseStarted{Base: NewBase(KindPhaseStarted, sessionID), Phase: phase}
}

// SessionEnded carries the terminal outcome of a session. Err is set for
// failed sessions only.
type SessionEnded struct {
	Base
	Outcome relay.Outcome
	Err     error
}

// NewSessionEnded creates a session ended event.
func NewSessionEnded(sessionID string, outcome relay.Outcome, err error) SessionEnded {
	return SessionEnded{Base: NewBase(KindSessionEnded, sessionID), Outcome: outcome, Err: err}
}
