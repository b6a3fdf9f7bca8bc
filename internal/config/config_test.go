package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"note-auditor/internal/types"
)

func TestNewManager(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		m := NewManager("/tmp/test-config.json")
		if m.Path() != "/tmp/test-config.json" {
			t.Errorf("expected config path /tmp/test-config.json, got %s", m.Path())
		}
	})

	t.Run("env path when empty", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/tmp/from-env.json")
		if got := NewManager("").Path(); got != "/tmp/from-env.json" {
			t.Errorf("expected env config path, got %s", got)
		}
	})

	t.Run("default file name", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		if got := NewManager("").Path(); got != DefaultConfigFileName {
			t.Errorf("expected %s, got %s", DefaultConfigFileName, got)
		}
	})
}

func TestManager_LoadDefaults(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "env-key")
	t.Setenv(EnvOpenAIBaseURL, "")
	t.Setenv(EnvOpenAIModel, "")

	m := NewManager(filepath.Join(t.TempDir(), "missing.json"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Config()
	if cfg.OpenAIAPIKey != "env-key" {
		t.Errorf("expected API key from env, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIModel != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, cfg.OpenAIModel)
	}
	if cfg.Policies.Locator != LocateFirst || cfg.Policies.ExpectedSupervisorLines != 1 {
		t.Errorf("unexpected default policies %+v", cfg.Policies)
	}
	if cfg.Batch.PauseEvery != 5 || cfg.Batch.Pause.Std() != 2*time.Second {
		t.Errorf("unexpected default batch settings %+v", cfg.Batch)
	}
	if len(cfg.GoalHeaders) != 4 || cfg.GoalHeaders[0] != "Goal #1" {
		t.Errorf("unexpected goal headers %v", cfg.GoalHeaders)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with key should validate: %v", err)
	}
}

func TestManager_LoadFile(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvOpenAIBaseURL, "")
	t.Setenv(EnvOpenAIModel, "env-model")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "openai_api_key": "file-key",
  "openai_model": "file-model",
  "credentials": ["LCSW", "LISW"],
  "policies": {"locator": "all", "expected_supervisor_lines": 0},
  "batch": {"pause": "500ms", "pause_every": 0}
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Config()

	if cfg.OpenAIAPIKey != "file-key" {
		t.Errorf("expected 'file-key', got %q", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIModel != "env-model" {
		t.Errorf("expected env to override model, got %q", cfg.OpenAIModel)
	}
	if cfg.Policies.Locator != LocateAll {
		t.Errorf("expected locator 'all', got %q", cfg.Policies.Locator)
	}
	if cfg.Policies.ExpectedSupervisorLines != 0 {
		t.Errorf("expected explicit zero supervisor lines, got %d", cfg.Policies.ExpectedSupervisorLines)
	}
	if cfg.Policies.RenderedByLabel != "Rendered by:" {
		t.Errorf("expected default label, got %q", cfg.Policies.RenderedByLabel)
	}
	if cfg.Batch.Pause.Std() != 500*time.Millisecond || cfg.Batch.PauseEvery != 0 {
		t.Errorf("unexpected batch settings %+v", cfg.Batch)
	}
	if got := cfg.CredentialSet().List(); len(got) != 2 || got[1] != "LISW" {
		t.Errorf("unexpected credentials %v", got)
	}
}

func TestManager_LoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(path, []byte("invalid json"), 0644); err != nil {
		t.Fatalf("failed to write invalid config: %v", err)
	}

	err := NewManager(path).Load()
	if !types.IsCode(err, types.ErrConfig) {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.OpenAIAPIKey = "key"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing key", func(c *Config) { c.OpenAIAPIKey = " " }},
		{"empty credentials", func(c *Config) { c.Credentials = []string{" "} }},
		{"bad code", func(c *Config) { c.TherapyCodes = []string{"9083"} }},
		{"inverted window", func(c *Config) { c.SigningWindow.MinDays = 9 }},
		{"unknown locator", func(c *Config) { c.Policies.Locator = "most" }},
		{"negative supervisors", func(c *Config) { c.Policies.ExpectedSupervisorLines = -1 }},
		{"unknown backend", func(c *Config) { c.Backend = "poppler" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); !types.IsCode(err, types.ErrConfig) {
				t.Errorf("expected CONFIG_ERROR, got %v", err)
			}
		})
	}
}

func TestManager_SaveOmitsAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	m := NewManager(path)
	m.Config().OpenAIAPIKey = "secret"

	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	var saved map[string]interface{}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("failed to parse saved config: %v", err)
	}
	if _, ok := saved["openai_api_key"]; ok {
		t.Error("API key must not be written to disk")
	}
	if saved["batch"].(map[string]interface{})["pause"] != "2s" {
		t.Errorf("expected pause to be saved as \"2s\", got %v", saved["batch"])
	}
	if m.Config().OpenAIAPIKey != "secret" {
		t.Error("Save must not clear the in-memory key")
	}
}
