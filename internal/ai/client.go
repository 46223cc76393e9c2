// Package ai provides the inference adapters behind the resolution cascade:
// a cheap model for routine suggestions and an expensive model for
// caller-selected escalations. Retry, rate-limit, and timeout semantics live
// here so the cascade's control flow stays free of them.
package ai

import (
	"time"
)

// Config holds configuration for an inference provider.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetries        int
}

// DefaultSuggestionConfidence is assigned when a model omits its confidence.
// Kept below the similarity-tier acceptance band so consumers can tell the
// tiers apart.
const DefaultSuggestionConfidence = 0.60

func (c *Config) applyDefaults() {
	if c.Model == "" {
		switch c.Provider {
		case "anthropic":
			c.Model = "claude-3-haiku-20240307"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 150
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}
