// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Generation  GenerationConfig
	RateLimit   RateLimitConfig
	Agent       AgentConfig
}

// GenerationConfig selects and configures the generation service client.
type GenerationConfig struct {
	Provider       string // "openai" or "mock"
	Model          string
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// RateLimitConfig bounds the shared generation-api category.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	RetryAfter  time.Duration
}

// AgentConfig bounds stage agent retries and pattern usage.
type AgentConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	PatternLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/copilot.db"),
		Generation: GenerationConfig{
			Provider:       getEnv("GENERATION_PROVIDER", "mock"),
			Model:          getEnv("GENERATION_MODEL", "gpt-4o-mini"),
			APIKey:         getEnv("GENERATION_API_KEY", ""),
			BaseURL:        getEnv("GENERATION_BASE_URL", ""),
			RequestTimeout: getEnvDuration("GENERATION_REQUEST_TIMEOUT", 45*time.Second),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 30),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			RetryAfter:  getEnvDuration("RATE_LIMIT_RETRY_AFTER", 0),
		},
		Agent: AgentConfig{
			MaxRetries:   getEnvInt("AGENT_MAX_RETRIES", 2),
			RetryBackoff: getEnvDuration("AGENT_RETRY_BACKOFF", 500*time.Millisecond),
			PatternLimit: getEnvInt("AGENT_PATTERN_LIMIT", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Generation.Provider {
	case "openai":
		if c.Generation.APIKey == "" {
			return fmt.Errorf("GENERATION_API_KEY is required for the openai provider")
		}
		if c.Generation.Model == "" {
			return fmt.Errorf("GENERATION_MODEL cannot be empty")
		}
	case "mock":
	default:
		return fmt.Errorf("GENERATION_PROVIDER must be \"openai\" or \"mock\", got %q", c.Generation.Provider)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("AGENT_MAX_RETRIES cannot be negative")
	}
	if c.Agent.PatternLimit <= 0 {
		return fmt.Errorf("AGENT_PATTERN_LIMIT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
