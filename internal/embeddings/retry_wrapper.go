package embeddings

import (
	"context"
	"strings"
	"time"

	"vaultmemory/internal/retry"
)

// RetryableService wraps a Service with retry logic for transient provider
// failures (rate limits, network blips).
type RetryableService struct {
	service Service
	retrier *retry.Retrier
}

// NewRetryableService wraps service with the default embedding retry policy.
func NewRetryableService(service Service, cfg *retry.Config) Service {
	if cfg == nil {
		cfg = defaultEmbeddingRetryConfig()
	}
	return &RetryableService{service: service, retrier: retry.New(cfg)}
}

func defaultEmbeddingRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.2,
		RetryIf:         isRetryableEmbeddingError,
	}
}

func isRetryableEmbeddingError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"i/o timeout",
		"eof",
		"429",
		"500",
		"502",
		"503",
		"504",
		"rate limit",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Embed retries a single embedding call on transient failure.
func (s *RetryableService) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	res := s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.service.Embed(ctx, text)
		return err
	})
	return result, res.Err
}

// EmbedBatch retries a batch embedding call on transient failure.
func (s *RetryableService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	res := s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.service.EmbedBatch(ctx, texts)
		return err
	})
	return result, res.Err
}

// Dimensions passes through to the wrapped service.
func (s *RetryableService) Dimensions() int { return s.service.Dimensions() }

// HealthCheck passes through to the wrapped service.
func (s *RetryableService) HealthCheck(ctx context.Context) error {
	return s.service.HealthCheck(ctx)
}
