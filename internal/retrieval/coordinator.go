// Package retrieval implements the RetrievalCoordinator: the KRONOS
// three-window temporal planner that fans a query out across vaults and
// recency bands, and the Hot/Cold race that picks between a Vault's
// authoritative (but possibly cold) index and the always-warm Replica.
package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultmemory/internal/config"
	"vaultmemory/internal/logging"
	"vaultmemory/internal/vault"
	"vaultmemory/pkg/types"
)

// VaultSearcher is the subset of *vault.Vault the coordinator depends on.
// Narrowed to an interface so tests can supply a stub vault.
type VaultSearcher interface {
	Search(ctx context.Context, query []float32, k int, minTS, maxTS *float64) (vault.SearchResponse, error)
	Buffer(ctx context.Context) (content string, tokens int, err error)
}

// ReplicaSearcher is the cold leg of the Hot/Cold race: an always-warm,
// partial mirror searchable by memory key.
type ReplicaSearcher interface {
	Search(ctx context.Context, memoryKey string, query []float32, k int) ([]types.SearchResult, error)
	Count(ctx context.Context, memoryKey string) (int64, error)
}

// VaultProvider resolves a vault name to its handle, hydrating it if
// necessary — the registry package supplies the concrete implementation.
type VaultProvider interface {
	Get(ctx context.Context, name string) (VaultSearcher, error)
}

// Coordinator implements both RetrievalCoordinator sub-functions.
type Coordinator struct {
	vaults   VaultProvider
	replica  ReplicaSearcher // nil disables the cold leg: race always uses the Vault
	temporal config.TemporalConfig
	race     config.RaceConfig
}

// New creates a Coordinator. replica may be nil, in which case Race always
// uses the authoritative Vault leg.
func New(vaults VaultProvider, replica ReplicaSearcher, temporal config.TemporalConfig, race config.RaceConfig) *Coordinator {
	return &Coordinator{vaults: vaults, replica: replica, temporal: temporal, race: race}
}

// window is one of the three KRONOS recency bands, as an absolute
// millisecond-since-epoch range.
type window struct {
	name     string
	min, max float64
}

// windows computes the HOT/WORKING/LONG_TERM boundaries relative to now, per
// SPEC_FULL 4.E.1. EXPIRED (older than the horizon) is intentionally excluded
// from normal retrieval.
func (c *Coordinator) windows(now time.Time) []window {
	nowMs := float64(now.UnixMilli())
	hotStart := nowMs - c.temporal.HotWindowHours*3600_000
	workingStart := nowMs - c.temporal.WorkingWindowHours*3600_000
	longStart := nowMs - c.temporal.HorizonDays*86_400_000

	return []window{
		{name: "hot", min: hotStart, max: nowMs},
		{name: "working", min: workingStart, max: hotStart},
		{name: "longterm", min: longStart, max: workingStart},
	}
}

// PlanResult is the response to a KRONOS-planned search across one or more
// vaults.
type PlanResult struct {
	Results         []types.SearchResult
	TokenCount      int
	WindowBreakdown map[string]int
}

// Plan issues per-window, per-vault searches in parallel, merges the results
// (dedup by content prefix, sort by score, truncate to k), and reports the
// recency-band breakdown of what was kept.
//
// allocations maps vault name to its fractional share of k; the caller is
// responsible for ensuring the fractions sum to ~1.0. A single vault/window
// failure degrades to an empty result for that leg rather than failing the
// whole plan (SPEC_FULL 4.E.1).
func (c *Coordinator) Plan(ctx context.Context, query []float32, k int, allocations map[string]float64) (PlanResult, error) {
	wins := c.windows(time.Now())

	type legResult struct {
		window string
		hits   []types.SearchResult
	}

	var mu sync.Mutex
	var legs []legResult

	g, gctx := errgroup.WithContext(ctx)
	for vaultName, fraction := range allocations {
		vaultName, fraction := vaultName, fraction
		vaultK := int(math.Ceil(float64(k) * fraction))
		if vaultK <= 0 {
			continue
		}
		perWindow := int(math.Ceil(float64(vaultK) / 3))

		v, err := c.vaults.Get(ctx, vaultName)
		if err != nil {
			logging.RetrievalLogger.Warn("plan: vault unavailable, treating as empty", "vault", vaultName, "error", err.Error())
			continue
		}

		for _, win := range wins {
			win := win
			g.Go(func() error {
				minTS, maxTS := win.min, win.max
				resp, err := v.Search(gctx, query, perWindow, &minTS, &maxTS)
				if err != nil {
					logging.RetrievalLogger.Warn("plan: window search failed, treating as empty",
						"vault", vaultName, "window", win.name, "error", err.Error())
					return nil
				}
				mu.Lock()
				legs = append(legs, legResult{window: win.name, hits: resp.Results})
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait() // leg failures are absorbed above; Wait only propagates context cancellation

	breakdown := map[string]int{"hot": 0, "working": 0, "longterm": 0}
	var all []types.SearchResult
	for _, leg := range legs {
		breakdown[leg.window] += len(leg.hits)
		all = append(all, leg.hits...)
	}

	merged := dedupeByContentPrefix(all)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}

	return PlanResult{
		Results:         merged,
		TokenCount:      tokenCount(merged),
		WindowBreakdown: breakdown,
	}, nil
}

const dedupPrefixLen = 100

func dedupeByContentPrefix(in []types.SearchResult) []types.SearchResult {
	seen := make(map[string]bool, len(in))
	out := make([]types.SearchResult, 0, len(in))
	for _, r := range in {
		key := r.Content
		if len(key) > dedupPrefixLen {
			key = key[:dedupPrefixLen]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// tokenCount sums the chars/4 estimate over every merged result, matching
// the estimator the Vault's own chunk buffer uses.
func tokenCount(results []types.SearchResult) int {
	var chars int
	for _, r := range results {
		chars += len(r.Content)
	}
	return (chars + 3) / 4
}

// RaceResult is the response to Race: a Hot/Cold search resolved to a single
// winning leg, with the pending buffer merged in as a synthetic hit.
type RaceResult struct {
	Results         []types.SearchResult
	WindowBreakdown map[string]int
	UsedReplica     bool
}

// Race implements SPEC_FULL 4.E.2: launch both legs immediately, prefer the
// replica outright when it's known to cover the whole vault, otherwise give
// the authoritative Vault up to race.Timeout before falling back to whatever
// the replica returned.
func (c *Coordinator) Race(ctx context.Context, memoryKey string, query []float32, k int) (RaceResult, error) {
	v, err := c.vaults.Get(ctx, memoryKey)
	if err != nil {
		return RaceResult{}, err
	}

	type authOutcome struct {
		resp vault.SearchResponse
		err  error
	}
	type replicaOutcome struct {
		hits  []types.SearchResult
		count int64
		err   error
	}

	authCh := make(chan authOutcome, 1)
	repCh := make(chan replicaOutcome, 1)
	bufCh := make(chan struct {
		content string
		tokens  int
	}, 1)

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		resp, err := v.Search(raceCtx, query, k, nil, nil)
		authCh <- authOutcome{resp: resp, err: err}
	}()

	go func() {
		var out replicaOutcome
		if c.replica == nil {
			repCh <- out
			return
		}
		hits, err := c.replica.Search(raceCtx, memoryKey, query, k)
		count, countErr := c.replica.Count(raceCtx, memoryKey)
		if err != nil {
			out.err = err
		}
		if countErr == nil {
			out.count = count
		}
		out.hits = hits
		repCh <- out
	}()

	go func() {
		content, tokens, err := v.Buffer(raceCtx)
		if err != nil {
			content, tokens = "", 0
		}
		bufCh <- struct {
			content string
			tokens  int
		}{content, tokens}
	}()

	rep := <-repCh
	var results []types.SearchResult
	usedReplica := false

	// A key whose replica COUNT is at or under race.CoverageThreshold of
	// race.ReplicaDepth counts as fully contained in the replica —
	// race.CoverageThreshold < 1 leaves margin for the replica's own sync
	// lag rather than trusting the configured depth exactly. The replica
	// itself is not pruned to race.ReplicaDepth.
	coverageCap := float64(c.race.ReplicaDepth) * c.race.CoverageThreshold
	if rep.count > 0 && float64(rep.count) <= coverageCap && len(rep.hits) > 0 {
		results = rep.hits
		usedReplica = true
	} else {
		select {
		case auth := <-authCh:
			if auth.err == nil && len(auth.resp.Results) > 0 {
				results = auth.resp.Results
			} else {
				results = rep.hits
				usedReplica = true
			}
		case <-time.After(c.race.Timeout):
			results = rep.hits
			usedReplica = true
			logging.RetrievalLogger.Warn("race: authoritative leg timed out, using replica", "vault", memoryKey)
		}
	}

	buf := <-bufCh
	if buf.content != "" {
		results = append(results, types.SearchResult{
			Score: 1.0, Content: buf.content, Role: types.RoleChunk, Source: "buffer",
		})
	}

	breakdown := map[string]int{"hot": 0, "working": 0, "longterm": 0}
	wins := c.windows(time.Now())
	for _, r := range results {
		breakdown[bandFor(r.Timestamp, wins)]++
	}

	return RaceResult{Results: results, WindowBreakdown: breakdown, UsedReplica: usedReplica}, nil
}

func bandFor(ts float64, wins []window) string {
	for _, w := range wins {
		if ts >= w.min && ts <= w.max {
			return w.name
		}
	}
	return "longterm"
}
