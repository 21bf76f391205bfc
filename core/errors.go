package orchestration

import (
	"errors"
	"fmt"
)

var (
	ErrPrimaryUnavailable   = errors.New("primary call produced no content")
	ErrSynthesisUnavailable = errors.New("synthesis call failed")

	ErrNoPrimary       = errors.New("no primary model configured")
	ErrNoSynthesis     = errors.New("no synthesis model configured")
	ErrSessionNotFound = errors.New("session not found")
)

// SecondaryFailedError records a failed analysis call. It never aborts the
// session.
type SecondaryFailedError struct {
	SourceID string
	Err      error
}

func (e *SecondaryFailedError) Error() string {
	return fmt.Sprintf("secondary %q failed: %v", e.SourceID, e.Err)
}

func (e *SecondaryFailedError) Unwrap() error { return e.Err }
