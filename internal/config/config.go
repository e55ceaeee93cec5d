// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AnthropicConfig holds the model provider settings.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Timeout   time.Duration
}

// Config holds all configuration for the letter service.
type Config struct {
	// Server
	Port       int
	LogLevel   string
	TrustProxy bool

	Anthropic AnthropicConfig

	// Secret Manager fallback for the API key
	SecretProject string
	SecretName    string

	// Rate limiting
	RedisURL          string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Generation history; empty disables it
	DatabaseURL string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Anthropic struct {
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model"`
		MaxTokens int    `yaml:"max_tokens"`
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"anthropic"`
	Secret struct {
		Project string `yaml:"project"`
		Name    string `yaml:"name"`
	} `yaml:"secret"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	RateLimit struct {
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
	} `yaml:"rate_limit"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The file is optional; values it sets take
// precedence over the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("no config file, using environment only", "path", configPath)
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	timeout, err := durationOr(raw.Anthropic.Timeout, envOrDefaultDuration("ANTHROPIC_TIMEOUT", 60*time.Second))
	if err != nil {
		return nil, fmt.Errorf("anthropic.timeout: %w", err)
	}
	window, err := durationOr(raw.RateLimit.Window, envOrDefaultDuration("RATE_LIMIT_WINDOW", time.Minute))
	if err != nil {
		return nil, fmt.Errorf("rate_limit.window: %w", err)
	}

	cfg := &Config{
		Port:       envOrDefaultInt("PORT", 8080),
		LogLevel:   envOrDefault("LOG_LEVEL", "info"),
		TrustProxy: envOrDefaultBool("TRUST_PROXY", false),
		Anthropic: AnthropicConfig{
			APIKey:    firstNonEmpty(raw.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
			Model:     firstNonEmpty(raw.Anthropic.Model, envOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")),
			MaxTokens: firstPositive(raw.Anthropic.MaxTokens, envOrDefaultInt("ANTHROPIC_MAX_TOKENS", 2048)),
			BaseURL:   firstNonEmpty(raw.Anthropic.BaseURL, envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com")),
			Timeout:   timeout,
		},
		SecretProject:     firstNonEmpty(raw.Secret.Project, os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCP_PROJECT")),
		SecretName:        firstNonEmpty(raw.Secret.Name, envOrDefault("ANTHROPIC_SECRET_NAME", "anthropic-api-key")),
		RedisURL:          firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		RateLimitRequests: firstPositive(raw.RateLimit.Requests, envOrDefaultInt("RATE_LIMIT_REQUESTS", 10)),
		RateLimitWindow:   window,
		DatabaseURL:       firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
	}

	if cfg.Anthropic.APIKey == "" && cfg.SecretProject == "" {
		return nil, fmt.Errorf("no API key source configured: set ANTHROPIC_API_KEY or GOOGLE_CLOUD_PROJECT for Secret Manager")
	}

	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// durationOr parses a YAML duration string, or returns fallback when unset.
func durationOr(v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
