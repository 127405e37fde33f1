// Package registry maps hierarchical Vault names to live *vault.Vault
// handles, generalizing the teacher's session.Manager
// ((project_id, session_id) access levels) to Vault addressing
// (memory_key, scope, id) per SPEC_FULL §3.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vaultmemory/internal/config"
	"vaultmemory/internal/persistence"
	"vaultmemory/internal/vault"
)

// Registry owns every live Vault in this process, keyed by its
// hierarchical name. A Vault is created lazily on first Get and lives
// until the process exits; nothing removes a registry entry (reset/clear
// wipe only the Vault's own state, hibernation only drops its memory).
type Registry struct {
	mu      sync.RWMutex
	vaults  map[string]*vault.Vault
	dataDir string

	embedder       vault.Embedder
	mirror         vault.Mirror // nil disables replica mirroring
	warmth         vault.WarmthReporter // nil disables cross-process warmth tracking
	hibernateAfter time.Duration
	maxActive      int
}

// New creates a Registry. mirror and warmth may be nil when their backing
// services are not configured (SPEC_FULL §9: both are resilience layers on
// top of the Vault, not hard dependencies of it).
func New(cfg *config.Config, embedder vault.Embedder, mirror vault.Mirror, warmth vault.WarmthReporter) *Registry {
	return &Registry{
		vaults:         make(map[string]*vault.Vault),
		dataDir:        cfg.SQLite.DataDir,
		embedder:       embedder,
		mirror:         mirror,
		warmth:         warmth,
		hibernateAfter: cfg.Vault.HibernateAfter,
		maxActive:      cfg.Vault.MaxActiveVaults,
	}
}

// HealthCheck verifies SQLite is reachable. It pings an already-open vault
// when one exists (the common case once the process has served traffic) to
// avoid touching disk on every probe; otherwise it opens and immediately
// closes a scratch store against dataDir, the only way to catch a missing
// or unwritable data directory before any vault has been hydrated.
func (r *Registry) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	for _, v := range r.vaults {
		r.mu.RUnlock()
		return v.Ping(ctx)
	}
	r.mu.RUnlock()

	store, err := persistence.Open(ctx, r.dataDir, "_healthz")
	if err != nil {
		return fmt.Errorf("registry: sqlite unreachable: %w", err)
	}
	defer store.Close()
	return store.Ping(ctx)
}

// CoreName returns the hierarchical name of a memory key's core vault.
func CoreName(memoryKey string) string { return memoryKey + ":core" }

// SessionName returns the hierarchical name of a memory key's per-session
// vault.
func SessionName(memoryKey, sessionID string) string { return memoryKey + ":s:" + sessionID }

// ExportName returns the hierarchical name of a memory key's per-conversation
// export vault.
func ExportName(memoryKey, convID string) string { return memoryKey + ":e:" + convID }

// Get resolves name to its Vault, opening the backing SQLite store and
// constructing the Vault on first access. Name → Vault mapping is
// deterministic: the same name always resolves to the same handle for the
// lifetime of the process.
func (r *Registry) Get(ctx context.Context, name string) (*vault.Vault, error) {
	r.mu.RLock()
	v, ok := r.vaults[name]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.vaults[name]; ok {
		return v, nil
	}

	if r.maxActive > 0 && len(r.vaults) >= r.maxActive {
		r.evictColdestLocked(ctx)
	}

	store, err := persistence.Open(ctx, r.dataDir, name)
	if err != nil {
		return nil, fmt.Errorf("registry: open vault %q: %w", name, err)
	}
	v = vault.Open(name, store, r.embedder, r.mirror, r.warmth, r.hibernateAfter)
	r.vaults[name] = v
	return v, nil
}

// evictColdestLocked hibernates the least-recently-active vault to keep
// this process's live handle count within MaxActiveVaults. Persisted state
// is untouched; the next Get simply re-hydrates from SQLite. Callers must
// hold r.mu.
func (r *Registry) evictColdestLocked(ctx context.Context) {
	var coldestName string
	var coldestAccess float64
	for name, v := range r.vaults {
		info, err := v.Warmth(ctx)
		if err != nil || !info.Loaded {
			continue
		}
		if coldestName == "" || info.LastActive < coldestAccess {
			coldestName, coldestAccess = name, info.LastActive
		}
	}
	if coldestName != "" {
		r.vaults[coldestName].Hibernate()
	}
}

// HibernateIdle sweeps every live vault and hibernates any whose Warmth
// report shows it hasn't been touched within hibernateAfter — the
// background half of the cold→warm→hibernate lifecycle described in
// SPEC_FULL §4.D. Intended to run on a periodic ticker from main.
func (r *Registry) HibernateIdle(ctx context.Context, now time.Time) int {
	r.mu.RLock()
	snapshot := make(map[string]*vault.Vault, len(r.vaults))
	for name, v := range r.vaults {
		snapshot[name] = v
	}
	r.mu.RUnlock()

	hibernated := 0
	for _, v := range snapshot {
		info, err := v.Warmth(ctx)
		if err != nil || !info.Loaded {
			continue
		}
		idleFor := now.Sub(time.UnixMilli(int64(info.LastActive)))
		if idleFor >= r.hibernateAfter {
			v.Hibernate()
			hibernated++
		}
	}
	return hibernated
}

// Stats reports how many vault handles this process currently holds open
// (loaded or hibernated), how many are loaded, and the MaxActiveVaults cap.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loaded := 0
	for _, v := range r.vaults {
		info, err := v.Warmth(context.Background())
		if err == nil && info.Loaded {
			loaded++
		}
	}
	return map[string]interface{}{
		"total_vaults":  len(r.vaults),
		"loaded_vaults": loaded,
		"max_active":    r.maxActive,
	}
}
