// Package warmth tracks, across processes, which vaults are hydrated and
// when each one was last touched. A Vault touches it when it hydrates and
// on each search, store and delete, and reads it back for the "warm" flag
// of its Warmth report; hydration and hibernation decisions do not consult
// it.
package warmth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vaultmemory/internal/config"
)

const keyPrefix = "vault:warmth:"

// Registry is a thin wrapper around a Redis client exposing only the
// warmth-tracking operations a Vault registry needs.
type Registry struct {
	client *redis.Client
}

// New connects to the Redis instance described by cfg. The connection is
// lazy: redis.NewClient never itself dials, so callers should follow up
// with Ping during startup health checks.
func New(cfg *config.RedisConfig) *Registry {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Registry{client: client}
}

// Ping verifies connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Registry) Close() error {
	return r.client.Close()
}

// Touch marks vaultName as active at now, resetting its hibernation clock.
// ttl should exceed the configured hibernate-after window so a vault isn't
// reported cold solely because of Redis-key expiry races.
func (r *Registry) Touch(ctx context.Context, vaultName string, now time.Time, ttl time.Duration) error {
	err := r.client.Set(ctx, keyPrefix+vaultName, now.UnixMilli(), ttl).Err()
	if err != nil {
		return fmt.Errorf("warmth: touch %s: %w", vaultName, err)
	}
	return nil
}

// LastActive returns the last Touch time for vaultName, or the zero Time
// if the vault has never been touched or its key has expired (i.e. it
// should be treated as cold/hibernated).
func (r *Registry) LastActive(ctx context.Context, vaultName string) (time.Time, error) {
	val, err := r.client.Get(ctx, keyPrefix+vaultName).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("warmth: last active %s: %w", vaultName, err)
	}
	return time.UnixMilli(val), nil
}

// Forget removes the warmth record for vaultName.
func (r *Registry) Forget(ctx context.Context, vaultName string) error {
	if err := r.client.Del(ctx, keyPrefix+vaultName).Err(); err != nil {
		return fmt.Errorf("warmth: forget %s: %w", vaultName, err)
	}
	return nil
}

// Warm reports whether vaultName has been touched within ttl of now.
func (r *Registry) Warm(ctx context.Context, vaultName string, now time.Time, ttl time.Duration) (bool, error) {
	last, err := r.LastActive(ctx, vaultName)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	return now.Sub(last) < ttl, nil
}
