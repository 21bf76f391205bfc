// Package llms defines the provider-neutral contract between the
// orchestrator and upstream language model providers.
package llms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PaulBappoo/Deeperseek/core/sse"
)

var ErrEmptyConversation = errors.New("conversation has no user turn")

// Speaker describes who authored a conversation turn.
type Speaker string

const (
	SpeakerSystem    Speaker = "system"
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is a single turn of the conversation sent upstream. The JSON form
// matches the chat message shape used by OpenAI-compatible APIs.
type Turn struct {
	Speaker Speaker `json:"role" jsonschema:"enum=system,enum=user,enum=assistant"`
	Text    string  `json:"content"`
}

// Request is what every upstream call receives.
type Request struct {
	Model  string
	Turns  []Turn
	Stream bool
}

// Completer issues a non-streaming call returning the complete text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Streamer issues a streaming call. Open returns the raw framed body, which
// the caller decodes record by record with DecodeChunk.
type Streamer interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
	DecodeChunk(rec sse.Record) (Chunk, error)
}

// Chunk is one decoded record of an upstream stream.
type Chunk struct {
	Content      string
	FinishReason *string
	// Done is set by the provider's explicit end-of-stream record.
	Done  bool
	Usage *Usage
}

// ValidateTurns checks that the conversation can be sent upstream.
func ValidateTurns(turns []Turn) error {
	hasUser := false
	for i, turn := range turns {
		switch turn.Speaker {
		case SpeakerUser:
			hasUser = true
		case SpeakerSystem, SpeakerAssistant:
		default:
			return fmt.Errorf("turn %d: unknown speaker %q", i, turn.Speaker)
		}
	}
	if !hasUser {
		return ErrEmptyConversation
	}
	return nil
}

// LastUserText returns the text of the latest user turn, which is the query
// the conversation is currently asking.
func LastUserText(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == SpeakerUser {
			return strings.TrimSpace(turns[i].Text)
		}
	}
	return ""
}
