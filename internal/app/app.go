// Package app turns a configuration into a ready coordinator.
package app

import (
	"fmt"

	orchestration "github.com/PaulBappoo/Deeperseek/core"
	"github.com/PaulBappoo/Deeperseek/core/events"
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/llms/deepseek"
	"github.com/PaulBappoo/Deeperseek/core/llms/openai"
	"github.com/PaulBappoo/Deeperseek/internal/config"
)

const openAIBaseURL = "https://api.openai.com/v1"

type provider struct {
	streamer  llms.Streamer
	completer llms.Completer
}

// NewCoordinator builds the upstream clients named by cfg and a coordinator
// using them. Extra options are applied after the configured ones.
func NewCoordinator(cfg config.Config, opts ...orchestration.CoordinatorOption) (*orchestration.Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	providers := make(map[string]provider, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providers[name] = newProvider(p, cfg)
	}

	spec := func(m config.Model) orchestration.ModelSpec {
		p := providers[m.Provider]
		return orchestration.ModelSpec{
			ID:          m.ID,
			Model:       m.Model,
			Streamer:    p.streamer,
			Completer:   p.completer,
			Streaming:   m.Streams(),
			Instruction: m.Instruction,
		}
	}

	secondaries := make([]orchestration.ModelSpec, 0, len(cfg.Secondaries))
	for _, m := range cfg.Secondaries {
		secondaries = append(secondaries, spec(m))
	}

	coordinatorOpts := []orchestration.CoordinatorOption{
		orchestration.WithPrimary(spec(cfg.Primary)),
		orchestration.WithSecondaries(secondaries...),
		orchestration.WithSynthesis(spec(cfg.Synthesis)),
		orchestration.WithCallTimeout(cfg.CallTimeout),
		orchestration.WithSecondaryConcurrency(cfg.SecondaryConcurrency),
		orchestration.WithEventHandler(logEvent),
	}
	coordinator, err := orchestration.NewCoordinator(append(coordinatorOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	logger.Info("coordinator ready",
		"primary", cfg.Primary.ID,
		"secondaries", len(secondaries),
		"synthesis", cfg.Synthesis.ID,
	)
	return coordinator, nil
}

// newProvider creates the clients of one provider. OpenAI endpoints stream
// through the OpenAI-compatible HTTP client and complete through the SDK.
func newProvider(p config.Provider, cfg config.Config) provider {
	switch p.Kind {
	case config.ProviderOpenAI:
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		return provider{
			streamer: deepseek.NewClient(p.APIKey,
				deepseek.WithBaseURL(baseURL),
				deepseek.WithConnectTimeout(cfg.ConnectTimeout),
			),
			completer: openai.NewCompleter(p.APIKey, openai.WithBaseURL(p.BaseURL)),
		}
	default:
		client := deepseek.NewClient(p.APIKey,
			deepseek.WithBaseURL(p.BaseURL),
			deepseek.WithConnectTimeout(cfg.ConnectTimeout),
		)
		return provider{streamer: client, completer: client}
	}
}

func logEvent(event events.Event) {
	switch typed := event.(type) {
	case events.PhaseStarted:
		logger.Debug("phase started", "session", typed.SessionID(), "phase", typed.Phase)
	case events.CallFinished:
		logger.Debug("call finished",
			"session", typed.SessionID(),
			"role", typed.Role,
			"source", typed.Result.SourceID,
			"status", typed.Result.Status,
		)
	}
}
