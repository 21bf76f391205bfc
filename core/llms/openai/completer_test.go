package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PaulBappoo/Deeperseek/core/llms"
)

func TestCompleteSendsTurnsAndReturnsContent(t *testing.T) {
	var received struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"critic","choices":[{"index":0,"message":{"role":"assistant","content":"Mostly accurate."},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	}))
	defer server.Close()

	completer := NewCompleter("key", WithBaseURL(server.URL), WithMaxRetries(0), WithDefaultModel("critic"))
	text, err := completer.Complete(context.Background(), llms.Request{Turns: []llms.Turn{
		{Speaker: llms.SpeakerSystem, Text: "review"},
		{Speaker: llms.SpeakerUser, Text: "The sky is blue."},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Mostly accurate." {
		t.Fatalf("unexpected text %q", text)
	}
	if received.Model != "critic" {
		t.Fatalf("expected default model, got %q", received.Model)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != "system" || received.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %+v", received.Messages)
	}
}

func TestCompleteWrapsAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	completer := NewCompleter("key", WithBaseURL(server.URL), WithMaxRetries(0))
	_, err := completer.Complete(context.Background(), llms.Request{Turns: []llms.Turn{{Speaker: llms.SpeakerUser, Text: "q"}}})

	var transportErr *llms.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status code %d", transportErr.StatusCode)
	}
}
