// Package config loads the server configuration from YAML. String values may
// reference environment variables as $NAME or ${NAME}, which keeps API keys
// out of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"

	DefaultListen            = ":3001"
	DefaultProvider          = ProviderDeepSeek
	DefaultModel             = "deepseek-chat"
	DefaultCallTimeout       = 2 * time.Minute
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

type Provider struct {
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key"`
}

type Model struct {
	ID          string `yaml:"id"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Streaming   *bool  `yaml:"streaming,omitempty"`
	Instruction string `yaml:"instruction,omitempty"`
}

// Streams reports whether the model should be called with streaming. It
// defaults to true.
func (m Model) Streams() bool {
	return m.Streaming == nil || *m.Streaming
}

type Config struct {
	Listen               string              `yaml:"listen"`
	CallTimeout          time.Duration       `yaml:"call_timeout"`
	ConnectTimeout       time.Duration       `yaml:"connect_timeout"`
	HeartbeatInterval    time.Duration       `yaml:"heartbeat_interval"`
	SecondaryConcurrency int                 `yaml:"secondary_concurrency"`
	Providers            map[string]Provider `yaml:"providers"`
	Primary              Model               `yaml:"primary"`
	Secondaries          []Model             `yaml:"secondaries"`
	Synthesis            Model               `yaml:"synthesis"`
}

// Default mirrors the original single-provider deployment: every call goes to
// DeepSeek's deepseek-chat with the key from DEEPSEEK_API_KEY.
func Default() Config {
	return Config{
		Listen:            DefaultListen,
		CallTimeout:       DefaultCallTimeout,
		ConnectTimeout:    DefaultConnectTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Providers: map[string]Provider{
			ProviderDeepSeek: {Kind: ProviderDeepSeek, APIKey: os.Getenv("DEEPSEEK_API_KEY")},
		},
		Primary: Model{ID: "primary", Provider: DefaultProvider, Model: DefaultModel},
		Secondaries: []Model{
			{
				ID:          "critic",
				Provider:    DefaultProvider,
				Model:       DefaultModel,
				Instruction: "Point out factual errors or gaps in the answer.",
			},
			{
				ID:          "editor",
				Provider:    DefaultProvider,
				Model:       DefaultModel,
				Instruction: "Suggest how the answer could be clearer and more concise.",
			},
		},
		Synthesis: Model{ID: "synthesis", Provider: DefaultProvider, Model: DefaultModel},
	}
}

// Load reads path, expands environment references and fills defaults. An
// empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document into a validated config.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Providers == nil {
		c.Providers = Default().Providers
	}
	for name, provider := range c.Providers {
		if provider.Kind == "" {
			provider.Kind = name
			c.Providers[name] = provider
		}
	}

	fill := func(m *Model, id string) {
		if m.ID == "" {
			m.ID = id
		}
		if m.Provider == "" {
			m.Provider = DefaultProvider
		}
		if m.Model == "" && m.Provider == DefaultProvider {
			m.Model = DefaultModel
		}
	}
	fill(&c.Primary, "primary")
	fill(&c.Synthesis, "synthesis")
	for i := range c.Secondaries {
		fill(&c.Secondaries[i], fmt.Sprintf("secondary-%d", i+1))
	}
}

// Validate reports every problem of the config at once.
func (c Config) Validate() error {
	var errs []error
	for name, provider := range c.Providers {
		switch provider.Kind {
		case ProviderDeepSeek, ProviderOpenAI:
		default:
			errs = append(errs, fmt.Errorf("provider %q has unknown kind %q", name, provider.Kind))
		}
	}

	seen := map[string]bool{}
	check := func(role string, m Model) {
		if _, ok := c.Providers[m.Provider]; !ok {
			errs = append(errs, fmt.Errorf("%s model %q uses unknown provider %q", role, m.ID, m.Provider))
		}
		if m.Model == "" {
			errs = append(errs, fmt.Errorf("%s model %q has no model name", role, m.ID))
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Errorf("model id %q is used more than once", m.ID))
		}
		seen[m.ID] = true
	}
	check("primary", c.Primary)
	for _, m := range c.Secondaries {
		check("secondary", m)
	}
	check("synthesis", c.Synthesis)

	if c.Primary.Streaming != nil && !*c.Primary.Streaming {
		errs = append(errs, fmt.Errorf("primary model %q must stream", c.Primary.ID))
	}
	if c.CallTimeout < 0 || c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
