// Package config loads runtime configuration and declarative workflow files.
// Runtime settings come from an optional config file plus LOOM_* environment
// variables; workflow definitions are standalone YAML documents the CLI and
// server compile into task graphs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	loomerrors "loom/internal/errors"
)

// envKeyReplacer maps nested keys like "server.addr" to LOOM_SERVER_ADDR.
var envKeyReplacer = strings.NewReplacer(".", "_")

// Config is the process-wide runtime configuration.
type Config struct {
	LogLevel      string        `mapstructure:"log_level"`
	CheckpointDir string        `mapstructure:"checkpoint_dir"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	Server        ServerConfig  `mapstructure:"server"`
	Model         ModelConfig   `mapstructure:"model"`
	Retry         RetryConfig   `mapstructure:"retry"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ModelConfig configures the default model provider.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RetryConfig mirrors the engine's default retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	JitterFactor float64       `mapstructure:"jitter_factor"`
}

// ToRetryConfig converts to the engine's policy type.
func (c RetryConfig) ToRetryConfig() loomerrors.RetryConfig {
	return loomerrors.RetryConfig{
		MaxAttempts:  c.MaxAttempts,
		BaseDelay:    c.BaseDelay,
		MaxDelay:     c.MaxDelay,
		JitterFactor: c.JitterFactor,
	}
}

// Load reads configuration from path (optional; empty means defaults plus
// environment) and overlays LOOM_* environment variables, e.g.
// LOOM_SERVER_ADDR or LOOM_MODEL_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOOM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envKeyReplacer)

	v.SetDefault("log_level", "info")
	v.SetDefault("checkpoint_dir", "~/.loom/checkpoints")
	v.SetDefault("run_timeout", time.Duration(0))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 2000)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.jitter_factor", 0.25)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
