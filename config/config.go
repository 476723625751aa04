// Package config loads dirigent configuration from files and the
// environment. Precedence is flags > environment > config file > defaults;
// the CLI binds its flags on top of the values loaded here.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for an agent run.
type Config struct {
	// Model is the model identifier sent to the provider.
	Model string `mapstructure:"model"`
	// Provider selects a registered adapter by name. Empty means infer
	// from the model, falling back to the client default.
	Provider string `mapstructure:"provider"`

	// MaxTurns bounds the number of model calls per run.
	MaxTurns int `mapstructure:"max_turns"`
	// MaxConcurrentTools bounds parallel tool execution within a turn.
	MaxConcurrentTools int `mapstructure:"max_concurrent_tools"`

	// ShellDefaultTimeoutMs applies when a shell call omits timeout_ms.
	ShellDefaultTimeoutMs int `mapstructure:"shell_default_timeout_ms"`
	// ShellMaxTimeoutMs caps any requested shell timeout.
	ShellMaxTimeoutMs int `mapstructure:"shell_max_timeout_ms"`

	// EventBufferSize is the per-subscriber event channel capacity.
	EventBufferSize int `mapstructure:"event_buffer_size"`
	// MaxToolOutputChars overrides the per-tool truncation caps when > 0.
	MaxToolOutputChars int `mapstructure:"max_tool_output_chars"`

	// TranscriptPath, when set, receives the conversation JSON after a run.
	TranscriptPath string `mapstructure:"transcript_path"`
	// Stream toggles token streaming from the provider.
	Stream bool `mapstructure:"stream"`
	// Debug enables verbose logging and console detail.
	Debug bool `mapstructure:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:                 "claude-sonnet-4-5",
		MaxTurns:              25,
		MaxConcurrentTools:    4,
		ShellDefaultTimeoutMs: 120000,
		ShellMaxTimeoutMs:     600000,
		EventBufferSize:       256,
		Stream:                true,
	}
}

// Load reads configuration from the given file path, or from the standard
// locations (./dirigent.yaml, ~/.dirigent.yaml) when path is empty, with
// DIRIGENT_* environment variables layered on top. A missing file is not an
// error; defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("model", def.Model)
	v.SetDefault("provider", def.Provider)
	v.SetDefault("max_turns", def.MaxTurns)
	v.SetDefault("max_concurrent_tools", def.MaxConcurrentTools)
	v.SetDefault("shell_default_timeout_ms", def.ShellDefaultTimeoutMs)
	v.SetDefault("shell_max_timeout_ms", def.ShellMaxTimeoutMs)
	v.SetDefault("event_buffer_size", def.EventBufferSize)
	v.SetDefault("max_tool_output_chars", def.MaxToolOutputChars)
	v.SetDefault("transcript_path", def.TranscriptPath)
	v.SetDefault("stream", def.Stream)
	v.SetDefault("debug", def.Debug)

	v.SetEnvPrefix("DIRIGENT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dirigent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; on the search path a missing file
		// just means defaults.
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the agent loop cannot run with.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be >= 1, got %d", c.MaxTurns)
	}
	if c.MaxConcurrentTools < 1 {
		return fmt.Errorf("max_concurrent_tools must be >= 1, got %d", c.MaxConcurrentTools)
	}
	if c.ShellDefaultTimeoutMs < 1 {
		return fmt.Errorf("shell_default_timeout_ms must be >= 1, got %d", c.ShellDefaultTimeoutMs)
	}
	if c.ShellMaxTimeoutMs < c.ShellDefaultTimeoutMs {
		return fmt.Errorf("shell_max_timeout_ms (%d) must be >= shell_default_timeout_ms (%d)",
			c.ShellMaxTimeoutMs, c.ShellDefaultTimeoutMs)
	}
	if c.EventBufferSize < 1 {
		return fmt.Errorf("event_buffer_size must be >= 1, got %d", c.EventBufferSize)
	}
	return nil
}

// CharLimits returns per-tool output caps for the conversation, honoring a
// global MaxToolOutputChars override.
func (c Config) CharLimits() map[string]int {
	if c.MaxToolOutputChars <= 0 {
		return nil
	}
	limits := make(map[string]int)
	for tool := range defaultLimitTools {
		limits[tool] = c.MaxToolOutputChars
	}
	return limits
}

var defaultLimitTools = map[string]struct{}{
	"read_file":         {},
	"write_file":        {},
	"list_directory":    {},
	"glob":              {},
	"grep":              {},
	"run_shell_command": {},
}
