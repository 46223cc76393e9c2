package embedding

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

// GeneratorConfig holds configuration for the embedding generator.
type GeneratorConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// openAIGenerator implements service.EmbeddingGenerator against an
// OpenAI-compatible embeddings endpoint.
type openAIGenerator struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	maxRetries int
}

// NewGenerator creates a new embedding generator.
func NewGenerator(cfg GeneratorConfig) (service.EmbeddingGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 1536
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &openAIGenerator{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		dimension:  dimension,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Embed generates a vector for the given text. Retries with backoff on
// transient failures; the per-call timeout comes from the HTTP client.
func (g *openAIGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32

	err := common.WithRetry(ctx, func() error {
		v, err := g.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}, service.RetryOptions{MaxAttempts: g.maxRetries})

	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (g *openAIGenerator) embedOnce(ctx context.Context, text string) ([]float32, error) {
	requestBody := map[string]any{
		"model": g.model,
		"input": text,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to marshal request: %w", err), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/embeddings", strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrExternalService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", common.ErrExternalService, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: embeddings", common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: embeddings API status %d", common.ErrExternalService, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("embeddings API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err), Retryable: false}
	}

	if len(response.Data) == 0 {
		return nil, &common.RetryableError{Err: fmt.Errorf("no embedding returned"), Retryable: false}
	}
	return response.Data[0].Embedding, nil
}

// Dimension returns the fixed dimensionality of generated vectors.
func (g *openAIGenerator) Dimension() int {
	return g.dimension
}
