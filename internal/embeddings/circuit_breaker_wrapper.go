package embeddings

import (
	"context"
	"time"

	"vaultmemory/internal/circuitbreaker"
)

// CircuitBreakerService wraps a Service with circuit breaker protection.
// There is no meaningful fallback for a missing embedding, so a trip here
// always surfaces to the caller as an error (circuitbreaker.ErrCircuitOpen
// while open, otherwise the provider's own error).
type CircuitBreakerService struct {
	service Service
	cb      *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerService wraps service with circuit breaker protection.
func NewCircuitBreakerService(service Service, cfg *circuitbreaker.Config) *CircuitBreakerService {
	if cfg == nil {
		cfg = &circuitbreaker.Config{
			Name:                  "embedding",
			FailureThreshold:      3,
			SuccessThreshold:      2,
			Timeout:               20 * time.Second,
			MaxConcurrentRequests: 5,
		}
	}
	return &CircuitBreakerService{service: service, cb: circuitbreaker.New(cfg)}
}

// Embed generates an embedding with circuit breaker protection.
func (s *CircuitBreakerService) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.service.Embed(ctx, text)
		return err
	})
	return result, err
}

// EmbedBatch generates batch embeddings with circuit breaker protection.
func (s *CircuitBreakerService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.service.EmbedBatch(ctx, texts)
		return err
	})
	return result, err
}

// Dimensions passes through to the wrapped service.
func (s *CircuitBreakerService) Dimensions() int { return s.service.Dimensions() }

// HealthCheck checks the wrapped service through the circuit breaker.
func (s *CircuitBreakerService) HealthCheck(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.service.HealthCheck(ctx)
	})
}

// GetCircuitBreakerStats exposes the underlying breaker's counters.
func (s *CircuitBreakerService) GetCircuitBreakerStats() circuitbreaker.Stats {
	return s.cb.GetStats()
}
