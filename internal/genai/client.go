// internal/genai/client.go
package genai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/common/logger"

	genai "google.golang.org/genai"
)

// Generator is the text-generation service consumed by the pipeline. Calls
// are treated as non-idempotent black boxes; retry policy lives here, not in
// the callers.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Embedder produces embedding vectors for knowledge base indexing and
// similarity queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Client struct {
	client         *genai.Client
	model          string
	embeddingModel string
	maxRetries     int
	baseDelay      time.Duration
	requestTimeout time.Duration
	logger         logger.Logger
}

func NewClient(ctx context.Context, cfg config.GenAIConfig, log logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxRetries:     cfg.MaxRetries,
		baseDelay:      time.Second,
		requestTimeout: cfg.RequestTimeout,
		logger:         log.WithFields(map[string]interface{}{"component": "genai"}),
	}, nil
}

// Generate runs one text-generation call with the given system instruction
// and user message, retrying transient failures with exponential backoff.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-timeoutCtx.Done():
				return "", errors.NewGenAITimeoutError()
			}
		}

		result, err := c.client.Models.GenerateContent(
			timeoutCtx,
			c.model,
			genai.Text(user),
			genConfig,
		)
		if err == nil {
			if err := validateGenerateResponse(result); err != nil {
				return "", fmt.Errorf("invalid response: %w", err)
			}
			return result.Text(), nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", errors.NewGenAIFailedError(fmt.Errorf("generate content failed: %w", err))
		}
		c.logger.Warn("retryable generation error", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return "", errors.NewGenAIFailedError(fmt.Errorf("max retries (%d) exceeded for Generate: %w", c.maxRetries, lastErr))
}

// Embed produces an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("text for embedding cannot be empty")
	}
	if len(trimmed) > 10000 {
		trimmed = trimmed[:10000]
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	content := []*genai.Content{genai.NewContentFromText(trimmed, genai.RoleUser)}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-timeoutCtx.Done():
				return nil, errors.NewGenAITimeoutError()
			}
		}

		result, err := c.client.Models.EmbedContent(timeoutCtx, c.embeddingModel, content, nil)
		if err == nil {
			return validateEmbeddingResponse(result)
		}

		lastErr = err
		if !isRetryableError(err) {
			return nil, errors.NewGenAIFailedError(fmt.Errorf("generate embedding failed: %w", err))
		}
	}

	return nil, errors.NewGenAIFailedError(fmt.Errorf("max retries (%d) exceeded for Embed: %w", c.maxRetries, lastErr))
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "context canceled") ||
		strings.Contains(errMsg, "context deadline exceeded") {
		return false
	}

	if apiErr, ok := err.(*genai.APIError); ok {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		case 400, 401, 403, 404:
			return false
		}
	}

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "EOF") {
		return true
	}

	return false
}

func validateGenerateResponse(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return fmt.Errorf("response is nil")
	}
	if len(resp.Candidates) == 0 {
		return fmt.Errorf("no candidates in response")
	}
	if resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("candidate content is empty")
	}
	return nil
}

func validateEmbeddingResponse(resp *genai.EmbedContentResponse) ([]float32, error) {
	if resp == nil {
		return nil, fmt.Errorf("response is nil")
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	embedding := resp.Embeddings[0].Values
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding vector is empty")
	}
	for i, val := range embedding {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("invalid embedding value at index %d: %v", i, val)
		}
	}
	return embedding, nil
}
