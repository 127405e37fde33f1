package storage

import (
	"context"
	"strings"
	"time"

	"vaultmemory/internal/retry"
	"vaultmemory/pkg/types"
)

// RetryableReplica wraps a Replica with retry logic, used on the
// bulk_store path where a tracked replica sync failure is reported back
// to the caller rather than silently dropped.
type RetryableReplica struct {
	replica *Replica
	retrier *retry.Retrier
}

// NewRetryableReplica wraps replica with the default bulk-sync retry policy.
func NewRetryableReplica(replica *Replica, cfg *retry.Config) *RetryableReplica {
	if cfg == nil {
		cfg = defaultReplicaRetryConfig()
	}
	return &RetryableReplica{replica: replica, retrier: retry.New(cfg)}
}

func defaultReplicaRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableReplicaError,
	}
}

func isRetryableReplicaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Upsert retries a single replica mirror write, returning the retry
// attempt count alongside any final error for d1_chunks_synced accounting.
func (r *RetryableReplica) Upsert(ctx context.Context, p ReplicaPoint) (attempts int, err error) {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.replica.Upsert(ctx, p)
	})
	return result.Attempts, result.Err
}

// Delete retries a single replica delete on transient failure.
func (r *RetryableReplica) Delete(ctx context.Context, id uint64) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.replica.Delete(ctx, id)
	})
	return result.Err
}

// Search retries the cold-leg search a bounded number of times; used only
// by offline tooling, the hot path uses the circuit-breaker wrapper instead.
func (r *RetryableReplica) Search(ctx context.Context, memoryKey string, query []float32, k int) ([]types.SearchResult, error) {
	var out []types.SearchResult
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.replica.Search(ctx, memoryKey, query, k)
		return err
	})
	return out, result.Err
}
