package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseExpandsEnvironmentAndFillsDefaults(t *testing.T) {
	t.Setenv("TEST_DEEPSEEK_KEY", "sk-test")

	cfg, err := Parse([]byte(`
call_timeout: 30s
providers:
  deepseek:
    api_key: ${TEST_DEEPSEEK_KEY}
  gpt:
    kind: openai
    api_key: sk-openai
secondaries:
  - id: critic
    instruction: Find mistakes.
  - id: editor
    provider: gpt
    model: gpt-4o-mini
    streaming: false
`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if cfg.Providers["deepseek"].APIKey != "sk-test" || cfg.Providers["deepseek"].Kind != ProviderDeepSeek {
		t.Fatalf("unexpected deepseek provider %+v", cfg.Providers["deepseek"])
	}
	if cfg.Listen != DefaultListen || cfg.CallTimeout != 30*time.Second || cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Fatalf("unexpected server settings %+v", cfg)
	}
	if cfg.Primary.ID != "primary" || cfg.Primary.Model != DefaultModel || !cfg.Primary.Streams() {
		t.Fatalf("unexpected primary %+v", cfg.Primary)
	}
	if cfg.Secondaries[0].Model != DefaultModel || !cfg.Secondaries[0].Streams() {
		t.Fatalf("unexpected critic %+v", cfg.Secondaries[0])
	}
	if cfg.Secondaries[1].Streams() || cfg.Secondaries[1].Provider != "gpt" {
		t.Fatalf("unexpected editor %+v", cfg.Secondaries[1])
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte(`
providers:
  deepseek:
    api_key: key
  weird:
    kind: carrier-pigeon
primary:
  streaming: false
secondaries:
  - id: primary
  - id: lost
    provider: nowhere
`))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, want := range []string{"carrier-pigeon", "must stream", `"primary" is used more than once`, `unknown provider "nowhere"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestLoadFromFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deeperseek.yaml")
	if err := os.WriteFile(path, []byte("listen: \":8080\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.Listen != ":8080" || len(cfg.Providers) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	defaults, err := Load("")
	if err != nil {
		t.Fatalf("unexpected default config error: %v", err)
	}
	if defaults.Listen != DefaultListen || len(defaults.Secondaries) != 2 {
		t.Fatalf("unexpected defaults %+v", defaults)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
