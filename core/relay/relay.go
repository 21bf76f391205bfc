// Package relay defines the downstream event stream of one orchestration
// session and its wire form.
//
// Every relay event is carried by a single SSE record (see core/sse). Content
// fragments use the default record type with a JSON payload
//
//	data: {"role":"analysis","source":"critic","text":"..."}
//
// while lifecycle records are named:
//
//   - session: first record of a stream, announces the session id.
//   - source_end: one upstream call finished, carries its status.
//   - error: a fatal phase failure with a machine readable code.
//   - done: the terminator, always the last record of a stream.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PaulBappoo/Deeperseek/core/sse"
)

var ErrDecodeAnomaly = errors.New("relay record could not be decoded")

// Role is the phase a fragment belongs to.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleAnalysis  Role = "analysis"
	RoleSynthesis Role = "synthesis"
)

func (r Role) Valid() bool {
	switch r {
	case RolePrimary, RoleAnalysis, RoleSynthesis:
		return true
	default:
		return false
	}
}

// Kind names the type of a relay record.
type Kind string

const (
	KindFragment  Kind = "fragment"
	KindSession   Kind = "session"
	KindSourceEnd Kind = "source_end"
	KindError     Kind = "error"
	KindDone      Kind = "done"
)

// Outcome is the terminal result of a session carried by the terminator.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodePrimaryUnavailable   = "primary_unavailable"
	ErrorCodeSynthesisUnavailable = "synthesis_unavailable"
)

// legacyDone is the bare terminator older servers append after the stream.
const legacyDone = "[DONE]"

// Fragment is an immutable decoded increment of one upstream call. Text must
// be valid UTF-8 to survive encoding unchanged; see ValidText.
type Fragment struct {
	Role     Role   `json:"role" jsonschema:"enum=primary,enum=analysis,enum=synthesis"`
	SourceID string `json:"source"`
	Text     string `json:"text"`
}

type Session struct {
	ID string `json:"session"`
}

type SourceEnd struct {
	Role      Role   `json:"role" jsonschema:"enum=primary,enum=analysis,enum=synthesis"`
	SourceID  string `json:"source"`
	Status    string `json:"status" jsonschema:"enum=ok,enum=failed,enum=cancelled"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code" jsonschema:"enum=invalid_request,enum=primary_unavailable,enum=synthesis_unavailable"`
	Message string `json:"message"`
}

type Done struct {
	Outcome Outcome `json:"outcome" jsonschema:"enum=completed,enum=failed,enum=cancelled"`
}

// Event is one record of the relay stream. Exactly one of the payload fields
// matching Kind is set.
type Event struct {
	Kind      Kind
	Fragment  *Fragment
	Session   *Session
	SourceEnd *SourceEnd
	Error     *ErrorDetail
	Done      *Done
}

// ValidText replaces invalid UTF-8 sequences in text with U+FFFD, the form
// the text takes after an encode and decode. ok reports whether text was
// already valid.
func ValidText(text string) (valid string, ok bool) {
	if utf8.ValidString(text) {
		return text, true
	}
	return strings.ToValidUTF8(text, string(utf8.RuneError)), false
}

func FragmentEvent(role Role, sourceID, text string) Event {
	return Event{Kind: KindFragment, Fragment: &Fragment{Role: role, SourceID: sourceID, Text: text}}
}

func SessionEvent(id string) Event {
	return Event{Kind: KindSession, Session: &Session{ID: id}}
}

func SourceEndEvent(end SourceEnd) Event {
	return Event{Kind: KindSourceEnd, SourceEnd: &end}
}

func ErrorEvent(code, message string) Event {
	return Event{Kind: KindError, Error: &ErrorDetail{Code: code, Message: message}}
}

func DoneEvent(outcome Outcome) Event {
	return Event{Kind: KindDone, Done: &Done{Outcome: outcome}}
}

func (e Event) IsTerminator() bool { return e.Kind == KindDone }

func (e Event) payload() (any, error) {
	var payload any
	switch e.Kind {
	case KindFragment:
		payload = e.Fragment
	case KindSession:
		payload = e.Session
	case KindSourceEnd:
		payload = e.SourceEnd
	case KindError:
		payload = e.Error
	case KindDone:
		payload = e.Done
	default:
		return nil, fmt.Errorf("unknown relay event kind %q", e.Kind)
	}
	if isNilPayload(payload) {
		return nil, fmt.Errorf("relay event %q has no payload", e.Kind)
	}
	return payload, nil
}

func isNilPayload(payload any) bool {
	switch p := payload.(type) {
	case *Fragment:
		return p == nil
	case *Session:
		return p == nil
	case *SourceEnd:
		return p == nil
	case *ErrorDetail:
		return p == nil
	case *Done:
		return p == nil
	}
	return payload == nil
}

// Record converts the event into its SSE record.
func (e Event) Record() (sse.Record, error) {
	payload, err := e.payload()
	if err != nil {
		return sse.Record{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return sse.Record{}, fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
	}

	rec := sse.Record{Data: data}
	if e.Kind != KindFragment {
		rec.Event = string(e.Kind)
	}
	return rec, nil
}

// Encode returns the self-delimited wire bytes of the event.
func Encode(e Event) ([]byte, error) {
	rec, err := e.Record()
	if err != nil {
		return nil, err
	}
	return sse.Encode(rec), nil
}

// Decode turns one SSE record back into a relay event. Records that cannot be
// interpreted are reported as ErrDecodeAnomaly and affect only themselves.
func Decode(rec sse.Record) (Event, error) {
	switch rec.Event {
	case "", "message":
		if string(rec.Data) == legacyDone {
			return DoneEvent(OutcomeCompleted), nil
		}
		var fragment Fragment
		if err := unmarshal(rec.Data, &fragment); err != nil {
			return Event{}, err
		}
		if !fragment.Role.Valid() {
			return Event{}, fmt.Errorf("%w: unknown role %q", ErrDecodeAnomaly, fragment.Role)
		}
		return Event{Kind: KindFragment, Fragment: &fragment}, nil

	case string(KindSession):
		var session Session
		if err := unmarshal(rec.Data, &session); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindSession, Session: &session}, nil

	case string(KindSourceEnd):
		var end SourceEnd
		if err := unmarshal(rec.Data, &end); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindSourceEnd, SourceEnd: &end}, nil

	case string(KindError):
		var detail ErrorDetail
		if err := unmarshal(rec.Data, &detail); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindError, Error: &detail}, nil

	case string(KindDone):
		done := Done{Outcome: OutcomeCompleted}
		if len(rec.Data) > 0 {
			if err := unmarshal(rec.Data, &done); err != nil {
				return Event{}, err
			}
		}
		return Event{Kind: KindDone, Done: &done}, nil

	default:
		return Event{}, fmt.Errorf("%w: unknown record type %q", ErrDecodeAnomaly, rec.Event)
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeAnomaly, err)
	}
	return nil
}
