package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hollyoak/tally/internal/common"
	"github.com/hollyoak/tally/internal/service"
)

// anthropicClient talks to the Anthropic messages endpoint.
type anthropicClient struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Anthropic API key", common.ErrMissingConfig)
	}

	cfg.applyDefaults()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}

	return &anthropicClient{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		limiter:     newRateLimiter(cfg.RequestsPerMinute),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Suggest asks the model to pick a label (or normalize free-form text when
// no candidates are given).
func (c *anthropicClient) Suggest(ctx context.Context, text string, candidateLabels []string) (service.Suggestion, error) {
	var suggestion service.Suggestion

	err := common.WithRetry(ctx, func() error {
		content, err := c.complete(ctx, suggestSystemPrompt, buildSuggestPrompt(text, candidateLabels))
		if err != nil {
			return err
		}

		parsed, err := parseSuggestion(content, candidateLabels)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		suggestion = parsed
		return nil
	}, service.RetryOptions{MaxAttempts: c.maxRetries})

	if err != nil {
		return service.Suggestion{}, err
	}
	return suggestion, nil
}

// complete performs one rate-limited messages call.
func (c *anthropicClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrExternalService, err)
	}

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to marshal request: %w", err), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrExternalService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", common.ErrExternalService, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: messages", common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: Anthropic API status %d", common.ErrExternalService, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err), Retryable: true}
	}

	if len(response.Content) == 0 {
		return "", &common.RetryableError{Err: fmt.Errorf("no content in response"), Retryable: true}
	}

	return response.Content[0].Text, nil
}

// Close releases the rate limiter.
func (c *anthropicClient) Close() {
	c.limiter.Close()
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicEscalator adapts the client to the escalation contract.
type anthropicEscalator struct {
	client *anthropicClient
}

// Suggest runs an expensive-model escalation for an ambiguous case.
func (e *anthropicEscalator) Suggest(ctx context.Context, req service.EscalationRequest) (service.EscalationResult, error) {
	var result service.EscalationResult

	err := common.WithRetry(ctx, func() error {
		content, err := e.client.complete(ctx, escalateSystemPrompt, buildEscalationPrompt(req))
		if err != nil {
			return err
		}

		parsed, err := parseEscalation(content)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		result = parsed
		return nil
	}, service.RetryOptions{MaxAttempts: e.client.maxRetries})

	if err != nil {
		return service.EscalationResult{}, err
	}
	return result, nil
}
