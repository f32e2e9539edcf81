// Copyright 2025 James Ross
package aidecoder

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient wraps the Gemini vision model as a Decoder, following the
// same functional-options client shape used elsewhere in the pack.
type GeminiClient struct {
	client      *genai.Client
	model       string
	log         *zap.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// ClientOption configures a GeminiClient.
type ClientOption func(*GeminiClient)

// WithModel overrides the default model name.
func WithModel(model string) ClientOption {
	return func(c *GeminiClient) { c.model = model }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *GeminiClient) { c.log = log }
}

// WithRetry overrides the retry attempt count and backoff bounds. The
// defaults (3 attempts, 2s-10s) mirror the original tenacity policy.
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) ClientOption {
	return func(c *GeminiClient) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// NewGeminiClient constructs a decoder bound to apiKey.
func NewGeminiClient(ctx context.Context, apiKey string, opts ...ClientOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("aidecoder: new gemini client: %w", err)
	}
	c := &GeminiClient{
		client:      client,
		model:       "gemini-2.0-flash",
		log:         zap.NewNop(),
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		maxDelay:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Decode sends image to the model and parses its response into readings.
// Transport errors are retried with exponential backoff up to maxAttempts
// before the final error is returned, matching §4.5 step 3.
func (c *GeminiClient) Decode(ctx context.Context, image []byte, mimeType string) (Result, error) {
	var lastErr error
	delay := c.baseDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.decodeOnce(ctx, image, mimeType)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.log.Warn("gemini decode attempt failed",
			zap.Int("attempt", attempt), zap.Int("max_attempts", c.maxAttempts), zap.Error(err))
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
	return Result{}, fmt.Errorf("aidecoder: decode failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *GeminiClient) decodeOnce(ctx context.Context, image []byte, mimeType string) (Result, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(extractionPrompt),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, nil)
	if err != nil {
		return Result{}, fmt.Errorf("aidecoder: generate content: %w", err)
	}

	text := extractText(resp)
	readings, err := parseReadings(text)
	if err != nil {
		return Result{}, fmt.Errorf("aidecoder: parse response: %w", err)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return Result{Readings: readings, Tokens: tokens}, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var buf bytes.Buffer
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			buf.WriteString(part.Text)
		}
	}
	return buf.String()
}
