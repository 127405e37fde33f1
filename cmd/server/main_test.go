package main

import (
	"context"
	"testing"

	"vaultmemory/internal/config"
)

// buildEmbedder and buildReplica/buildWarmth are exercised indirectly through
// config-driven main(); this just checks the provider switch picks the mock
// path without needing network access or an API key.
func TestBuildEmbedderSelectsMockProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 8

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		t.Fatalf("buildEmbedder: %v", err)
	}
	if embedder == nil {
		t.Fatal("buildEmbedder returned a nil embedder")
	}
}

func TestBuildReplicaSkipsWhenQdrantHostUnset(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Qdrant.Host = ""

	mirror, reader, closeFn, err := buildReplica(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildReplica: %v", err)
	}
	if mirror != nil || reader != nil || closeFn != nil {
		t.Fatal("buildReplica should return nils when no Qdrant host is configured")
	}
}

func TestBuildWarmthSkipsWhenRedisAddrUnset(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Addr = ""

	reporter, closeFn := buildWarmth(cfg)
	if reporter != nil || closeFn != nil {
		t.Fatal("buildWarmth should return nils when no Redis address is configured")
	}
}
