package ai

import (
	"fmt"
	"strings"

	"github.com/hollyoak/tally/internal/service"
)

// NewCheapInference creates the low-cost suggestion client for the
// configured provider.
func NewCheapInference(cfg Config) (service.CheapInference, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", cfg.Provider)
	}
}

// NewExpensiveInference creates the escalation client. Same providers as the
// cheap tier, typically pointed at a stronger model with a larger budget.
func NewExpensiveInference(cfg Config) (service.ExpensiveInference, error) {
	if cfg.Model == "" {
		switch strings.ToLower(cfg.Provider) {
		case "anthropic":
			cfg.Model = "claude-3-opus-20240229"
		default:
			cfg.Model = "gpt-4o"
		}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		client, err := newOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return &openAIEscalator{client: client}, nil
	case "anthropic":
		client, err := newAnthropicClient(cfg)
		if err != nil {
			return nil, err
		}
		return &anthropicEscalator{client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", cfg.Provider)
	}
}
