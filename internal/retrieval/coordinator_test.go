package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultmemory/internal/config"
	"vaultmemory/internal/vault"
	"vaultmemory/pkg/types"
)

type stubVault struct {
	searchFn func(ctx context.Context, query []float32, k int, minTS, maxTS *float64) (vault.SearchResponse, error)
	buffer   string
	tokens   int
}

func (s *stubVault) Search(ctx context.Context, query []float32, k int, minTS, maxTS *float64) (vault.SearchResponse, error) {
	return s.searchFn(ctx, query, k, minTS, maxTS)
}

func (s *stubVault) Buffer(ctx context.Context) (string, int, error) {
	return s.buffer, s.tokens, nil
}

type stubProvider struct{ vaults map[string]VaultSearcher }

func (p *stubProvider) Get(_ context.Context, name string) (VaultSearcher, error) {
	v, ok := p.vaults[name]
	if !ok {
		return nil, errors.New("retrieval test: unknown vault " + name)
	}
	return v, nil
}

type stubReplica struct {
	searchFn func(ctx context.Context, memoryKey string, query []float32, k int) ([]types.SearchResult, error)
	count    int64
}

func (r *stubReplica) Search(ctx context.Context, memoryKey string, query []float32, k int) ([]types.SearchResult, error) {
	return r.searchFn(ctx, memoryKey, query, k)
}

func (r *stubReplica) Count(_ context.Context, _ string) (int64, error) {
	return r.count, nil
}

func testTemporal() config.TemporalConfig {
	return config.TemporalConfig{HotWindowHours: 4, WorkingWindowHours: 72, HorizonDays: 90}
}

func testRace(timeout time.Duration) config.RaceConfig {
	return config.RaceConfig{Timeout: timeout, CoverageThreshold: 0.8, ReplicaDepth: 2000}
}

func TestPlanSplitsAcrossThreeWindowsAndReportsBreakdown(t *testing.T) {
	var calls int
	v := &stubVault{searchFn: func(_ context.Context, _ []float32, _ int, minTS, maxTS *float64) (vault.SearchResponse, error) {
		calls++
		return vault.SearchResponse{Results: []types.SearchResult{{
			ID: uint64(calls), Score: float32(calls), Content: fmt.Sprintf("chunk-%d", calls), Timestamp: *minTS,
		}}}, nil
	}}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	c := New(provider, nil, testTemporal(), testRace(time.Second))

	result, err := c.Plan(context.Background(), []float32{1, 0}, 3, map[string]float64{"tenant-a": 1.0})
	require.NoError(t, err)
	assert.Len(t, result.Results, 3)
	assert.Equal(t, 1, result.WindowBreakdown["hot"])
	assert.Equal(t, 1, result.WindowBreakdown["working"])
	assert.Equal(t, 1, result.WindowBreakdown["longterm"])
	assert.Greater(t, result.TokenCount, 0)
	// sorted descending by score
	for i := 1; i < len(result.Results); i++ {
		assert.GreaterOrEqual(t, result.Results[i-1].Score, result.Results[i].Score)
	}
}

func TestPlanDedupesByContentPrefix(t *testing.T) {
	v := &stubVault{searchFn: func(_ context.Context, _ []float32, _ int, _, _ *float64) (vault.SearchResponse, error) {
		return vault.SearchResponse{Results: []types.SearchResult{
			{ID: 1, Score: 0.9, Content: "identical opening content that repeats"},
		}}, nil
	}}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	c := New(provider, nil, testTemporal(), testRace(time.Second))

	result, err := c.Plan(context.Background(), []float32{1}, 9, map[string]float64{"tenant-a": 1.0})
	require.NoError(t, err)
	assert.Len(t, result.Results, 1, "identical content across all three windows collapses to one hit")
}

func TestPlanToleratesUnknownVaultAllocation(t *testing.T) {
	provider := &stubProvider{vaults: map[string]VaultSearcher{}}
	c := New(provider, nil, testTemporal(), testRace(time.Second))

	result, err := c.Plan(context.Background(), []float32{1}, 6, map[string]float64{"missing-tenant": 1.0})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestRaceUsesReplicaWhenVaultIsSmallAndCovered(t *testing.T) {
	v := &stubVault{searchFn: func(_ context.Context, _ []float32, _ int, _, _ *float64) (vault.SearchResponse, error) {
		return vault.SearchResponse{Results: []types.SearchResult{{ID: 1, Content: "authoritative hit"}}}, nil
	}}
	rep := &stubReplica{count: 100, searchFn: func(_ context.Context, _ string, _ []float32, _ int) ([]types.SearchResult, error) {
		return []types.SearchResult{{ID: 2, Content: "replica hit"}}, nil
	}}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	c := New(provider, rep, testTemporal(), testRace(time.Second))

	result, err := c.Race(context.Background(), "tenant-a", []float32{1}, 5)
	require.NoError(t, err)
	assert.True(t, result.UsedReplica)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "replica hit", result.Results[0].Content)
}

func TestRaceCoverageThresholdShrinksEffectiveReplicaDepth(t *testing.T) {
	v := &stubVault{searchFn: func(_ context.Context, _ []float32, _ int, _, _ *float64) (vault.SearchResponse, error) {
		return vault.SearchResponse{Results: []types.SearchResult{{ID: 1, Content: "authoritative hit"}}}, nil
	}}
	rep := &stubReplica{count: 1800, searchFn: func(_ context.Context, _ string, _ []float32, _ int) ([]types.SearchResult, error) {
		return []types.SearchResult{{ID: 2, Content: "replica hit"}}, nil
	}}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	// ReplicaDepth=2000 alone would cover 1800, but a tighter CoverageThreshold
	// pulls the effective cap below the vault's count, so the race should
	// fall through to the authoritative leg instead of taking the shortcut.
	race := config.RaceConfig{Timeout: time.Second, CoverageThreshold: 0.5, ReplicaDepth: 2000}
	c := New(provider, rep, testTemporal(), race)

	result, err := c.Race(context.Background(), "tenant-a", []float32{1}, 5)
	require.NoError(t, err)
	assert.False(t, result.UsedReplica)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "authoritative hit", result.Results[0].Content)
}

func TestRaceUsesAuthoritativeWhenReplicaDoesNotCoverVault(t *testing.T) {
	v := &stubVault{searchFn: func(_ context.Context, _ []float32, _ int, _, _ *float64) (vault.SearchResponse, error) {
		return vault.SearchResponse{Results: []types.SearchResult{{ID: 1, Content: "authoritative hit"}}}, nil
	}}
	rep := &stubReplica{count: 5000, searchFn: func(_ context.Context, _ string, _ []float32, _ int) ([]types.SearchResult, error) {
		return []types.SearchResult{{ID: 2, Content: "replica partial hit"}}, nil
	}}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	c := New(provider, rep, testTemporal(), testRace(time.Second))

	result, err := c.Race(context.Background(), "tenant-a", []float32{1}, 5)
	require.NoError(t, err)
	assert.False(t, result.UsedReplica)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "authoritative hit", result.Results[0].Content)
}

func TestRaceFallsBackToReplicaOnAuthoritativeTimeout(t *testing.T) {
	v := &stubVault{searchFn: func(ctx context.Context, _ []float32, _ int, _, _ *float64) (vault.SearchResponse, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return vault.SearchResponse{Results: []types.SearchResult{{ID: 1, Content: "too slow"}}}, nil
		case <-ctx.Done():
			return vault.SearchResponse{}, ctx.Err()
		}
	}}
	rep := &stubReplica{count: 5000, searchFn: func(_ context.Context, _ string, _ []float32, _ int) ([]types.SearchResult, error) {
		return []types.SearchResult{{ID: 2, Content: "replica partial hit"}}, nil
	}}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	c := New(provider, rep, testTemporal(), testRace(20*time.Millisecond))

	result, err := c.Race(context.Background(), "tenant-a", []float32{1}, 5)
	require.NoError(t, err)
	assert.True(t, result.UsedReplica)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "replica partial hit", result.Results[0].Content)
}

func TestRaceMergesPendingBufferAsSyntheticHotChunk(t *testing.T) {
	v := &stubVault{
		buffer: "pending turn not yet embedded",
		tokens: 8,
		searchFn: func(_ context.Context, _ []float32, _ int, _, _ *float64) (vault.SearchResponse, error) {
			return vault.SearchResponse{Results: []types.SearchResult{{ID: 1, Content: "authoritative hit"}}}, nil
		},
	}
	provider := &stubProvider{vaults: map[string]VaultSearcher{"tenant-a": v}}
	c := New(provider, nil, testTemporal(), testRace(time.Second))

	result, err := c.Race(context.Background(), "tenant-a", []float32{1}, 5)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	last := result.Results[len(result.Results)-1]
	assert.Equal(t, "buffer", last.Source)
	assert.Equal(t, float32(1.0), last.Score)
}

func TestRaceReturnsErrorWhenVaultUnknown(t *testing.T) {
	provider := &stubProvider{vaults: map[string]VaultSearcher{}}
	c := New(provider, nil, testTemporal(), testRace(time.Second))
	_, err := c.Race(context.Background(), "missing", []float32{1}, 5)
	assert.Error(t, err)
}
