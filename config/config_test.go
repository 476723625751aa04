package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.MaxTurns != def.MaxTurns {
		t.Errorf("MaxTurns = %d, want %d", cfg.MaxTurns, def.MaxTurns)
	}
	if cfg.ShellDefaultTimeoutMs != 120000 {
		t.Errorf("ShellDefaultTimeoutMs = %d, want 120000", cfg.ShellDefaultTimeoutMs)
	}
	if !cfg.Stream {
		t.Error("Stream should default to true")
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dirigent.yaml")
	content := "model: gpt-4o\nprovider: openai\nmax_turns: 5\nstream: false\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", cfg.Model)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.MaxTurns != 5 {
		t.Errorf("MaxTurns = %d, want 5", cfg.MaxTurns)
	}
	if cfg.Stream {
		t.Error("Stream should be false from file")
	}
	// Unset keys keep their defaults.
	if cfg.MaxConcurrentTools != Default().MaxConcurrentTools {
		t.Errorf("MaxConcurrentTools = %d, want default %d",
			cfg.MaxConcurrentTools, Default().MaxConcurrentTools)
	}
}

func TestExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DIRIGENT_MAX_TURNS", "7")
	t.Setenv("DIRIGENT_MODEL", "claude-opus-4-1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxTurns != 7 {
		t.Errorf("MaxTurns = %d, want 7 from env", cfg.MaxTurns)
	}
	if cfg.Model != "claude-opus-4-1" {
		t.Errorf("Model = %q, want claude-opus-4-1 from env", cfg.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty model", func(c *Config) { c.Model = "" }, "model"},
		{"zero turns", func(c *Config) { c.MaxTurns = 0 }, "max_turns"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentTools = 0 }, "max_concurrent_tools"},
		{"zero shell timeout", func(c *Config) { c.ShellDefaultTimeoutMs = 0 }, "shell_default_timeout_ms"},
		{"max below default", func(c *Config) { c.ShellMaxTimeoutMs = 1 }, "shell_max_timeout_ms"},
		{"zero buffer", func(c *Config) { c.EventBufferSize = 0 }, "event_buffer_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestCharLimitsOverride(t *testing.T) {
	cfg := Default()
	if cfg.CharLimits() != nil {
		t.Error("no override should yield nil limits")
	}

	cfg.MaxToolOutputChars = 5000
	limits := cfg.CharLimits()
	if limits["read_file"] != 5000 || limits["run_shell_command"] != 5000 {
		t.Errorf("override not applied: %v", limits)
	}
}
