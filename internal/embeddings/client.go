package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

var (
	// ErrEmptyInput indicates empty or whitespace-only input text.
	// Rejected before any provider call.
	ErrEmptyInput = errors.New("empty input text")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrGenerationFailed indicates embedding generation failed after
	// exhausting all retry attempts.
	ErrGenerationFailed = errors.New("embedding generation failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Client wraps a Provider with input validation, fixed-dimension checking,
// per-call timeouts, and bounded retry.
//
// Backoff is linear: after failed attempt n (0-based) the client waits
// RetryDelay * (n+1) before trying again. Dimension mismatches count as
// failures and are retried like any other.
type Client struct {
	provider   Provider
	dimension  int
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	model      string
	logger     *zap.Logger
	metrics    *Metrics
}

// NewClient creates an embedding client over the given provider.
func NewClient(cfg config.EmbeddingConfig, provider Provider, logger *zap.Logger) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider required", ErrInvalidConfig)
	}
	if cfg.Dimension < 1 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, cfg.Dimension)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidConfig, cfg.MaxRetries)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		provider:   provider,
		dimension:  cfg.Dimension,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay.Duration(),
		timeout:    cfg.Timeout.Duration(),
		model:      cfg.Model,
		logger:     logger,
		metrics:    NewMetrics(logger),
	}, nil
}

// Dimension returns the fixed vector length this client enforces.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed generates an embedding for the given text.
//
// Returns ErrEmptyInput for empty or whitespace-only text without calling
// the provider. Any provider failure, timeout, or dimension mismatch is
// retried up to the ceiling; after exhaustion the last error is wrapped in
// ErrGenerationFailed with the attempt count.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		c.metrics.RecordGeneration(ctx, c.model, time.Since(start), embErr)
	}()

	if strings.TrimSpace(text) == "" {
		embErr = fmt.Errorf("%w: text cannot be empty or whitespace", ErrEmptyInput)
		return nil, embErr
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		vector, err := c.embedOnce(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err

		c.logger.Warn("embedding attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Error(err))

		if attempt == c.maxRetries-1 {
			break
		}

		// Linear backoff: RetryDelay * (attempt+1).
		select {
		case <-ctx.Done():
			embErr = fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
			return nil, embErr
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}

	embErr = fmt.Errorf("%w after %d attempts: %v", ErrGenerationFailed, c.maxRetries, lastErr)
	return nil, embErr
}

// embedOnce performs a single provider call with the per-call timeout and
// validates the returned vector length.
func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	vector, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimension, len(vector))
	}
	return vector, nil
}
