package llms

import (
	"fmt"
	"net/http"
)

type Status string

const (
	StatusOK Status = "ok"
	// StatusFailed marks an upstream problem: transport, protocol or timeout.
	StatusFailed Status = "failed"
	// StatusCancelled marks a call stopped by its session being cancelled.
	StatusCancelled Status = "cancelled"
)

// CallResult is the outcome of exactly one upstream call. Text holds
// everything accumulated before the call ended, including for failed and
// cancelled calls.
type CallResult struct {
	SourceID string
	Status   Status
	Text     string
	Err      error
	// Truncated is set when the stream ended on a partial record that had to
	// be discarded.
	Truncated bool
	Usage     *Usage
}

func (r CallResult) OK() bool { return r.Status == StatusOK }

// TransportError reports a failure talking to an upstream provider.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: non-OK HTTP status %d %s: %v", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: non-OK HTTP status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
