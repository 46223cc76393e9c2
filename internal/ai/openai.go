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

// openAIClient talks to an OpenAI-compatible chat-completions endpoint.
type openAIClient struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
}

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key", common.ErrMissingConfig)
	}

	cfg.applyDefaults()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &openAIClient{
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
func (c *openAIClient) Suggest(ctx context.Context, text string, candidateLabels []string) (service.Suggestion, error) {
	var suggestion service.Suggestion

	err := common.WithRetry(ctx, func() error {
		content, err := c.complete(ctx, suggestSystemPrompt, buildSuggestPrompt(text, candidateLabels))
		if err != nil {
			return err
		}

		parsed, err := parseSuggestion(content, candidateLabels)
		if err != nil {
			// A malformed response is worth one more attempt.
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

// complete performs one rate-limited chat-completion call.
func (c *openAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrExternalService, err)
	}

	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to marshal request: %w", err), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return "", fmt.Errorf("%w: chat completions", common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: OpenAI API status %d", common.ErrExternalService, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err), Retryable: true}
	}

	if len(response.Choices) == 0 {
		return "", &common.RetryableError{Err: fmt.Errorf("no completion choices returned"), Retryable: true}
	}

	return response.Choices[0].Message.Content, nil
}

// Close releases the rate limiter.
func (c *openAIClient) Close() {
	c.limiter.Close()
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIEscalator adapts the client to the escalation contract.
type openAIEscalator struct {
	client *openAIClient
}

// Suggest runs an expensive-model escalation for an ambiguous case.
func (e *openAIEscalator) Suggest(ctx context.Context, req service.EscalationRequest) (service.EscalationResult, error) {
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
