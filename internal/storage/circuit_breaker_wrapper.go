package storage

import (
	"context"
	"time"

	"vaultmemory/internal/circuitbreaker"
	"vaultmemory/pkg/types"
)

// CircuitBreakerReplica wraps a Replica so a flaky replica database degrades
// gracefully: searches fall back to empty results (coverage 0, so the race
// always prefers the authoritative Vault leg) instead of failing the call.
type CircuitBreakerReplica struct {
	replica *Replica
	cb      *circuitbreaker.CircuitBreaker
}

// NewCircuitBreakerReplica wraps replica with circuit breaker protection.
func NewCircuitBreakerReplica(replica *Replica, cfg *circuitbreaker.Config) *CircuitBreakerReplica {
	if cfg == nil {
		cfg = &circuitbreaker.Config{
			Name:                  "replica",
			FailureThreshold:      5,
			SuccessThreshold:      2,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 8,
		}
	}
	return &CircuitBreakerReplica{replica: replica, cb: circuitbreaker.New(cfg)}
}

// Upsert mirrors a chunk with circuit breaker protection; no fallback is
// meaningful here, the caller decides whether to treat a failure as fatal
// (bulk_store) or ignorable (interactive store).
func (c *CircuitBreakerReplica) Upsert(ctx context.Context, p ReplicaPoint) error {
	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return c.replica.Upsert(ctx, p)
	})
}

// Delete removes a chunk with circuit breaker protection.
func (c *CircuitBreakerReplica) Delete(ctx context.Context, id uint64) error {
	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return c.replica.Delete(ctx, id)
	})
}

// Search runs the cold leg with a fallback to an empty result set on
// circuit-breaker failure, so the race's winner-selection policy simply
// sees zero coverage from the replica and prefers the Vault leg.
func (c *CircuitBreakerReplica) Search(ctx context.Context, memoryKey string, query []float32, k int) ([]types.SearchResult, error) {
	var result []types.SearchResult
	err := c.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = c.replica.Search(ctx, memoryKey, query, k)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = nil
			return nil
		},
	)
	return result, err
}

// Count estimates the replica's per-memory-key coverage with a fallback to
// 0 on circuit-breaker failure, so a degraded replica is treated as empty
// rather than blocking the race.
func (c *CircuitBreakerReplica) Count(ctx context.Context, memoryKey string) (int64, error) {
	var result int64
	err := c.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = c.replica.Count(ctx, memoryKey)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			result = 0
			return nil
		},
	)
	return result, err
}

// HealthCheck checks replica reachability through the circuit breaker.
func (c *CircuitBreakerReplica) HealthCheck(ctx context.Context) error {
	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return c.replica.HealthCheck(ctx)
	})
}

// GetCircuitBreakerStats exposes the underlying breaker's counters.
func (c *CircuitBreakerReplica) GetCircuitBreakerStats() circuitbreaker.Stats {
	return c.cb.GetStats()
}

// Close releases the wrapped replica's connection.
func (c *CircuitBreakerReplica) Close() error {
	return c.replica.Close()
}
