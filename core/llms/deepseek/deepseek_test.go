package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/sse"
)

func TestOpenSendsStreamingRequest(t *testing.T) {
	var received requestBody
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		authorization = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"The sky\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient("secret", WithBaseURL(server.URL+"/v1/"))
	body, err := client.Open(context.Background(), llms.Request{
		Turns: []llms.Turn{{Speaker: llms.SpeakerUser, Text: "Why is the sky blue?"}},
	})
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}

	if authorization != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", authorization)
	}
	if received.Model != DefaultModel || !received.Stream {
		t.Fatalf("unexpected request body: %+v", received)
	}
	if len(received.Messages) != 1 || received.Messages[0].Role != "user" {
		t.Fatalf("unexpected request messages: %+v", received.Messages)
	}

	records, _, _ := sse.Split(raw)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	chunk, err := client.DecodeChunk(records[0])
	if err != nil || chunk.Content != "The sky" {
		t.Fatalf("unexpected first chunk %+v (err %v)", chunk, err)
	}
	chunk, err = client.DecodeChunk(records[1])
	if err != nil || !chunk.Done {
		t.Fatalf("expected done chunk, got %+v (err %v)", chunk, err)
	}
}

func TestOpenReportsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Insufficient Balance"}}`, http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := NewClient("secret", WithBaseURL(server.URL))
	_, err := client.Open(context.Background(), llms.Request{
		Turns: []llms.Turn{{Speaker: llms.SpeakerUser, Text: "q"}},
	})

	var transportErr *llms.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("unexpected status code %d", transportErr.StatusCode)
	}
	if !strings.Contains(transportErr.Body, "Insufficient Balance") {
		t.Fatalf("expected error body to be kept, got %q", transportErr.Body)
	}
}

func TestDecodeChunkReadsFinishReasonAndUsage(t *testing.T) {
	client := NewClient("")
	chunk, err := client.DecodeChunk(sse.Record{Data: []byte(`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19,"prompt_cache_hit_tokens":4}}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.FinishReason == nil || *chunk.FinishReason != "stop" {
		t.Fatalf("expected stop finish reason, got %v", chunk.FinishReason)
	}
	if chunk.Usage == nil || chunk.Usage.TotalTokens != 19 || chunk.Usage.InputTokensDetails.CachedTokens != 4 {
		t.Fatalf("unexpected usage %+v", chunk.Usage)
	}

	if _, err := client.DecodeChunk(sse.Record{Data: []byte("{oops")}); err == nil {
		t.Fatalf("expected malformed chunk to fail decoding")
	}
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	var received requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Rayleigh scattering."},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer server.Close()

	client := NewClient("k", WithBaseURL(server.URL), WithDefaultModel("deepseek-reasoner"))
	text, err := client.Complete(context.Background(), llms.Request{
		Model: "deepseek-chat",
		Turns: []llms.Turn{{Speaker: llms.SpeakerUser, Text: "why"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Rayleigh scattering." {
		t.Fatalf("unexpected text %q", text)
	}
	if received.Stream || received.Model != "deepseek-chat" {
		t.Fatalf("unexpected request body %+v", received)
	}
}

func TestCompleteFailsWithoutChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer server.Close()

	_, err := NewClient("k", WithBaseURL(server.URL)).Complete(context.Background(), llms.Request{})
	if !errors.Is(err, errNoChoices) {
		t.Fatalf("expected errNoChoices, got %v", err)
	}
}
