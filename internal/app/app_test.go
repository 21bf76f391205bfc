package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/PaulBappoo/Deeperseek/internal/config"
)

// newUpstream fakes an OpenAI-compatible chat completions endpoint that
// answers every call with reply.
func newUpstream(t *testing.T, reply string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":%q,"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, body.Model, reply)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range strings.SplitAfter(reply, " ") {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", word)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestNewCoordinatorRunsConfiguredModels(t *testing.T) {
	upstream := newUpstream(t, "The sky is blue.")
	defer upstream.Close()

	noStream := false
	cfg := config.Default()
	cfg.Providers = map[string]config.Provider{
		"deepseek": {Kind: config.ProviderDeepSeek, BaseURL: upstream.URL + "/v1", APIKey: "sk-test"},
		"gpt":      {Kind: config.ProviderOpenAI, BaseURL: upstream.URL + "/v1", APIKey: "sk-test"},
	}
	cfg.Secondaries = []config.Model{
		{ID: "critic", Provider: "deepseek", Model: "deepseek-chat"},
		{ID: "editor", Provider: "gpt", Model: "gpt-4o-mini", Streaming: &noStream},
	}

	coordinator, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("unexpected coordinator error: %v", err)
	}

	recorder := relay.NewRecorder()
	session, outcome := coordinator.Orchestrate(context.Background(), recorder,
		[]llms.Turn{{Speaker: llms.SpeakerUser, Text: "Why is the sky blue?"}})
	if outcome != relay.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s (%v)", outcome, session.Err())
	}

	for _, id := range []string{"primary", "critic", "editor", "synthesis"} {
		result, ok := session.Result(id)
		if !ok || !result.OK() || result.Text != "The sky is blue." {
			t.Fatalf("unexpected result for %s: %+v", id, result)
		}
	}
}

func TestNewCoordinatorRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Primary.Provider = "missing"

	if _, err := NewCoordinator(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
