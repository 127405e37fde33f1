// Package vault implements the per-tenant Vault: the VectorIndex,
// Persistence, and ChunkBuffer combined behind a single-threaded-per-vault
// RPC surface, with fire-and-forget (interactive) or tracked (bulk)
// mirroring into the Replica and last-active reporting to the Warmth
// registry.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"vaultmemory/internal/chunking"
	vaulterrors "vaultmemory/internal/errors"
	"vaultmemory/internal/logging"
	"vaultmemory/internal/persistence"
	"vaultmemory/internal/storage"
	"vaultmemory/internal/vectorindex"
	"vaultmemory/pkg/types"
)

// Embedder is the text-to-vector dependency a Vault needs for store_chunked
// and bulk_store; kept narrow so tests can supply embeddings.NewMockService.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Mirror is the replica-facing dependency a Vault writes through. Both
// storage.RetryableReplica (tracked, bulk) and a no-op stub (tests) satisfy
// it.
type Mirror interface {
	Upsert(ctx context.Context, p storage.ReplicaPoint) (attempts int, err error)
	Delete(ctx context.Context, id uint64) error
}

// WarmthReporter is the cross-process last-active tracker a Vault touches
// when it hydrates and on each search, store and delete; hibernation does
// not report to it.
type WarmthReporter interface {
	Touch(ctx context.Context, vaultName string, now time.Time, ttl time.Duration) error
	Warm(ctx context.Context, vaultName string, now time.Time, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, vaultName string) error
}

// Vault is the per-tenant unit of isolation: one SQLite file, one in-memory
// index, one chunk buffer. Callers serialize access externally (the
// registry hands out one Vault at a time per name) — Vault itself holds no
// lock, matching the "single execution slot per vault" concurrency model.
type Vault struct {
	Name string

	store    *persistence.Store
	index    *vectorindex.Index // nil until dims are pinned
	items    map[uint64]types.Item
	buffer   *chunking.Buffer
	embedder Embedder
	mirror   Mirror // nil disables replica mirroring
	warmth   WarmthReporter
	hibernateAfter time.Duration

	dims       int
	loaded     bool
	createdAt  float64
	lastAccess float64
}

// Open creates a Vault handle bound to store. The in-memory index is NOT
// hydrated yet — the first data-bearing call triggers hydrate, per the
// cold/warm/hibernate lifecycle.
func Open(name string, store *persistence.Store, embedder Embedder, mirror Mirror, warmthReg WarmthReporter, hibernateAfter time.Duration) *Vault {
	return &Vault{
		Name:           name,
		store:          store,
		buffer:         chunking.New(""),
		embedder:       embedder,
		mirror:         mirror,
		warmth:         warmthReg,
		hibernateAfter: hibernateAfter,
	}
}

func nowMillis() float64 { return float64(time.Now().UnixMilli()) }

// ensureHydrated implements the cold->warm transition of SPEC_FULL 4.D: read
// VaultState from meta, and if it carries a pinned nonzero dims, load every
// persisted vector into a fresh VectorIndex.
func (v *Vault) ensureHydrated(ctx context.Context) error {
	if v.loaded {
		return nil
	}

	state, err := v.loadState(ctx)
	if err != nil {
		return err
	}
	v.dims = state.Dims
	v.createdAt = state.CreatedAt
	v.lastAccess = state.LastAccess

	if state.Dims > 0 {
		vecs, itemRows, blobs, err := v.store.LoadAll(ctx)
		if err != nil {
			return err
		}
		idx := vectorindex.New(state.Dims)
		items := make(map[uint64]types.Item, len(itemRows))
		for _, it := range itemRows {
			items[it.ID] = it
		}
		for _, vec := range vecs {
			embedding := vectorindex.DecodeEmbedding(blobs[vec.ID], state.Dims)
			if err := idx.Add(vec.ID, embedding, vec.Timestamp); err != nil {
				return vaulterrors.NewInternalError("hydrate: rebuilding index", err)
			}
		}
		v.index = idx
		v.items = items
	} else {
		v.items = make(map[uint64]types.Item)
	}

	content, tokens, err := v.store.LoadPendingBuffer(ctx)
	if err != nil {
		return err
	}
	v.buffer = chunking.New(content)
	_ = tokens // recomputed from content; kept in sync by construction

	v.loaded = true
	if v.warmth != nil {
		_ = v.warmth.Touch(ctx, v.Name, time.Now(), v.hibernateAfter)
	}
	logging.VaultLogger.Info("vault hydrated", "vault", v.Name, "dims", v.dims, "vectors", len(v.items))
	return nil
}

// Hibernate drops in-memory state; persistence already has everything
// durable, so this is simply letting the GC reclaim the index and cache.
func (v *Vault) Hibernate() {
	v.index = nil
	v.items = nil
	v.loaded = false
}

func (v *Vault) loadState(ctx context.Context) (types.VaultState, error) {
	raw, err := v.store.LoadMeta(ctx, "vault_state")
	if err != nil {
		return types.VaultState{}, err
	}
	if raw == "" {
		state := types.VaultState{Dims: 0, CreatedAt: nowMillis(), LastAccess: nowMillis()}
		if err := v.saveState(ctx, state); err != nil {
			return types.VaultState{}, err
		}
		return state, nil
	}
	return decodeVaultState(raw)
}

func (v *Vault) saveState(ctx context.Context, state types.VaultState) error {
	return v.store.SaveMeta(ctx, "vault_state", encodeVaultState(state))
}

func (v *Vault) touch(ctx context.Context) {
	v.lastAccess = nowMillis()
	if v.warmth != nil {
		_ = v.warmth.Touch(ctx, v.Name, time.Now(), v.hibernateAfter)
	}
}

// SearchResponse is the result envelope shared by Search and each KRONOS
// per-window call.
type SearchResponse struct {
	Results      []types.SearchResult
	HotVectors   int
	TotalVectors int64
	BufferTokens int
}

// Search runs the store's in-memory top-k search, optionally restricted to
// [minTS, maxTS], and reports live index sizing alongside the hit list.
func (v *Vault) Search(ctx context.Context, query []float32, k int, minTS, maxTS *float64) (SearchResponse, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return SearchResponse{}, err
	}
	v.touch(ctx)

	resp := SearchResponse{BufferTokens: v.buffer.Tokens()}
	total, err := v.store.ItemCount(ctx)
	if err != nil {
		return SearchResponse{}, err
	}
	resp.TotalVectors = total

	if v.index == nil {
		return resp, nil
	}
	resp.HotVectors = v.index.Len()

	if err := types.ValidateDims(v.dims, len(query)); err != nil {
		return SearchResponse{}, vaulterrors.NewDimensionMismatchError(v.dims, len(query))
	}

	var filter func(id uint64, ts float64) bool
	if minTS != nil || maxTS != nil {
		filter = func(_ uint64, ts float64) bool {
			if minTS != nil && ts < *minTS {
				return false
			}
			if maxTS != nil && ts > *maxTS {
				return false
			}
			return true
		}
	}

	hits, err := v.index.SearchTopK(query, k, filter)
	if err != nil {
		return SearchResponse{}, err
	}
	resp.Results = v.hydrateContent(hits)
	return resp, nil
}

// hydrateContent fills in content/role/model from the items cache for each
// raw index hit.
func (v *Vault) hydrateContent(hits []types.SearchResult) []types.SearchResult {
	out := make([]types.SearchResult, len(hits))
	for i, hit := range hits {
		if item, ok := v.items[hit.ID]; ok {
			hit.Content = item.Content
			hit.Role = item.Role
			hit.Model = item.Model
		}
		hit.Source = "index"
		out[i] = hit
	}
	return out
}

// StoreResult is the response to Store.
type StoreResult struct {
	ID           uint64
	Stored       bool
	Reason       string // "duplicate" when Stored is false
	TokenCount   int
	TotalVectors int64
}

// Store implements the add-then-search protocol of SPEC_FULL 4.D: dim
// validation/pinning, dedup by content hash, atomic persistence, then an
// immediate in-memory insert so the vector is searchable before Store
// returns. On success it mirrors into the Replica fire-and-forget.
func (v *Vault) Store(ctx context.Context, embedding []float32, content string, role types.Role, model, requestID string) (StoreResult, error) {
	result, err := v.storeNoMirror(ctx, embedding, content, role, model, requestID)
	if err != nil || !result.Stored || v.mirror == nil {
		return result, err
	}

	point := storage.ReplicaPoint{ID: result.ID, MemoryKey: v.Name, Embedding: embedding, Content: content, Role: string(role), Timestamp: nowMillis()}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := v.mirror.Upsert(bgCtx, point); err != nil {
			logging.ReplicaLogger.Warn("fire-and-forget replica mirror failed", "vault", v.Name, "id", result.ID, "error", err.Error())
		}
	}()
	return result, nil
}

// storeNoMirror runs the store protocol without touching the replica; used
// directly by BulkStore, which mirrors synchronously itself so the response
// can report tracked d1_synced/d1_chunks_synced accounting.
func (v *Vault) storeNoMirror(ctx context.Context, embedding []float32, content string, role types.Role, model, requestID string) (StoreResult, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return StoreResult{}, err
	}
	v.touch(ctx)

	if v.index != nil {
		if err := types.ValidateDims(v.dims, len(embedding)); err != nil {
			return StoreResult{}, vaulterrors.NewDimensionMismatchError(v.dims, len(embedding))
		}
	}

	hash := types.ContentHash(content)
	for _, item := range v.items {
		if item.ContentHash == hash {
			return StoreResult{ID: item.ID, Stored: false, Reason: "duplicate"}, nil
		}
	}

	nextID, err := v.store.MaxID(ctx)
	if err != nil {
		return StoreResult{}, err
	}
	id := nextID + 1
	ts := nowMillis()
	tokenCount := types.TokenCountEstimate(content)

	vec := types.Vector{ID: id, Embedding: embedding, Timestamp: ts}
	item := types.Item{
		ID: id, Content: content, Role: role, ContentHash: hash,
		Model: model, RequestID: requestID, Timestamp: ts, TokenCount: tokenCount,
	}
	blob := embeddingBlob(embedding)

	if err := v.store.SaveVector(ctx, vec, len(embedding), item, blob); err != nil {
		return StoreResult{}, err
	}

	if v.index == nil {
		v.index = vectorindex.New(0)
	}
	if err := v.index.Add(id, embedding, ts); err != nil {
		return StoreResult{}, vaulterrors.NewInternalError("store: index add", err)
	}
	v.dims = v.index.Dims()
	if v.items == nil {
		v.items = make(map[uint64]types.Item)
	}
	v.items[id] = item

	state, _ := v.loadState(ctx)
	state.Dims = v.dims
	state.VectorCount = int64(v.index.Len())
	state.LastAccess = ts
	_ = v.saveState(ctx, state)

	total, err := v.store.ItemCount(ctx)
	if err != nil {
		return StoreResult{}, err
	}
	return StoreResult{ID: id, Stored: true, TokenCount: tokenCount, TotalVectors: total}, nil
}

// BulkLine is a single JSONL record for BulkStore.
type BulkLine struct {
	Content   string
	Role      types.Role
	Timestamp float64
}

// BulkResult is the response to BulkStore, including tracked replica sync
// accounting (SPEC_FULL 9's resolved open question: bulk tracks, interactive
// doesn't).
type BulkResult struct {
	Stored         int
	Failed         int
	Errors         []string
	D1Synced       int
	D1ChunksSynced int
	D1Errors       []string
}

const bulkEmbedBatchSize = 25

// BulkStore embeds and stores lines in batches of bulkEmbedBatchSize; a
// batch embedding failure falls back to item-by-item retry so one bad
// record doesn't sink the whole batch.
func (v *Vault) BulkStore(ctx context.Context, lines []BulkLine) (BulkResult, error) {
	if len(lines) == 0 {
		return BulkResult{}, vaulterrors.NewValidationError("lines", "bulk_store requires at least one line", nil)
	}
	if err := v.ensureHydrated(ctx); err != nil {
		return BulkResult{}, err
	}

	var result BulkResult
	for start := 0; start < len(lines); start += bulkEmbedBatchSize {
		end := start + bulkEmbedBatchSize
		if end > len(lines) {
			end = len(lines)
		}
		batch := lines[start:end]

		texts := make([]string, len(batch))
		for i, l := range batch {
			texts[i] = l.Content
		}
		embeddings, err := v.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			v.bulkStoreItemByItem(ctx, batch, &result)
			continue
		}

		for i, l := range batch {
			role := l.Role
			if role == "" {
				role = types.RoleUser
			}
			storeResult, err := v.storeNoMirror(ctx, embeddings[i], l.Content, role, "", "")
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if !storeResult.Stored {
				continue // duplicate content: neither stored nor failed
			}
			result.Stored++
			if v.mirror == nil {
				continue
			}
			point := storage.ReplicaPoint{ID: storeResult.ID, MemoryKey: v.Name, Embedding: embeddings[i], Content: l.Content, Role: string(role), Timestamp: nowMillis()}
			if _, err := v.mirror.Upsert(ctx, point); err != nil {
				result.D1Errors = append(result.D1Errors, err.Error())
			} else {
				result.D1Synced++
				result.D1ChunksSynced++
			}
		}
	}
	return result, nil
}

func (v *Vault) bulkStoreItemByItem(ctx context.Context, batch []BulkLine, result *BulkResult) {
	for _, l := range batch {
		embedding, err := v.embedder.Embed(ctx, l.Content)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("embed failed: %s", err.Error()))
			continue
		}
		role := l.Role
		if role == "" {
			role = types.RoleUser
		}
		storeResult, err := v.storeNoMirror(ctx, embedding, l.Content, role, "", "")
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if !storeResult.Stored {
			continue // duplicate content: neither stored nor failed
		}
		result.Stored++
		if v.mirror == nil {
			continue
		}
		point := storage.ReplicaPoint{ID: storeResult.ID, MemoryKey: v.Name, Embedding: embedding, Content: l.Content, Role: string(role), Timestamp: nowMillis()}
		if _, err := v.mirror.Upsert(ctx, point); err != nil {
			result.D1Errors = append(result.D1Errors, err.Error())
		} else {
			result.D1Synced++
			result.D1ChunksSynced++
		}
	}
}

// ChunkedResult is the response to StoreChunked.
type ChunkedResult struct {
	ChunksEmbedded []string
	BufferTokens   int
	BufferContent  string
}

// StoreChunked feeds (role, content) into the ChunkBuffer; every chunk the
// buffer emits is immediately embedded and stored (the Vault already wraps
// the embedder, so there is no separate "commit these chunks" call in the
// external surface), and the buffer's new pending state is persisted.
func (v *Vault) StoreChunked(ctx context.Context, content string, role types.Role) (ChunkedResult, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return ChunkedResult{}, err
	}
	v.touch(ctx)

	emitted := v.buffer.Append(role, content)
	for _, chunk := range emitted {
		embedding, err := v.embedder.Embed(ctx, chunk)
		if err != nil {
			logging.VaultLogger.Warn("chunk embedding failed", "vault", v.Name, "error", err.Error())
			continue
		}
		if _, err := v.Store(ctx, embedding, chunk, types.RoleChunk, "", ""); err != nil {
			logging.VaultLogger.Warn("chunk store failed", "vault", v.Name, "error", err.Error())
		}
	}

	if err := v.store.SavePendingBuffer(ctx, v.buffer.Content, v.buffer.Tokens(), nowMillis()); err != nil {
		return ChunkedResult{}, err
	}

	return ChunkedResult{ChunksEmbedded: emitted, BufferTokens: v.buffer.Tokens(), BufferContent: v.buffer.Content}, nil
}

// Buffer returns the current pending chunk-buffer content and token count,
// backing GET /buffer.
func (v *Vault) Buffer(ctx context.Context) (content string, tokens int, err error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return "", 0, err
	}
	return v.buffer.Content, v.buffer.Tokens(), nil
}

// FlushBuffer forces emission of the entire pending buffer as a single
// under-sized chunk, embeds and stores it, then clears the buffer.
func (v *Vault) FlushBuffer(ctx context.Context) (ChunkedResult, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return ChunkedResult{}, err
	}
	chunk := v.buffer.Flush()
	if chunk != "" {
		embedding, err := v.embedder.Embed(ctx, chunk)
		if err == nil {
			_, _ = v.Store(ctx, embedding, chunk, types.RoleChunk, "", "")
		}
	}
	if err := v.store.SavePendingBuffer(ctx, "", 0, nowMillis()); err != nil {
		return ChunkedResult{}, err
	}
	return ChunkedResult{ChunksEmbedded: nonEmpty(chunk), BufferTokens: 0, BufferContent: ""}, nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// DeleteResult is the response to Delete.
type DeleteResult struct {
	Deleted      int
	BytesDeleted int64
	TotalVectors int64
}

// Delete removes vectors either by explicit ids or by an older-than cutoff
// (not both; ids takes precedence when both are given). Neither given is a
// no-op per SPEC_FULL's contract table.
func (v *Vault) Delete(ctx context.Context, ids []uint64, olderThan *float64) (DeleteResult, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return DeleteResult{}, err
	}
	v.touch(ctx)

	var deletedIDs []uint64
	var bytesDeleted int64
	var err error

	switch {
	case len(ids) > 0:
		bytesDeleted, err = v.store.DeleteByIDs(ctx, ids)
		deletedIDs = ids
	case olderThan != nil:
		deletedIDs, bytesDeleted, err = v.store.DeleteOlderThan(ctx, *olderThan)
	default:
		total, cErr := v.store.ItemCount(ctx)
		return DeleteResult{TotalVectors: total}, cErr
	}
	if err != nil {
		return DeleteResult{}, err
	}

	for _, id := range deletedIDs {
		if v.index != nil {
			v.index.Remove(id)
		}
		delete(v.items, id)
		if v.mirror != nil {
			_ = v.mirror.Delete(ctx, id)
		}
	}

	total, err := v.store.ItemCount(ctx)
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: len(deletedIDs), BytesDeleted: bytesDeleted, TotalVectors: total}, nil
}

// Clear wipes every vector/item/buffer row but keeps the pinned dims, so a
// subsequent store with the same embedding width continues to work.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.ensureHydrated(ctx); err != nil {
		return err
	}
	if err := v.store.Clear(ctx); err != nil {
		return err
	}
	if v.dims > 0 {
		v.index = vectorindex.New(v.dims)
	} else {
		v.index = nil
	}
	v.items = make(map[uint64]types.Item)
	v.buffer = chunking.New("")
	return nil
}

// Reset differs from Clear in that dims is zeroed, so the next store re-pins
// the dimensionality (used when switching embedding models).
func (v *Vault) Reset(ctx context.Context) error {
	if err := v.Clear(ctx); err != nil {
		return err
	}
	v.dims = 0
	v.index = nil
	state, _ := v.loadState(ctx)
	state.Dims = 0
	state.VectorCount = 0
	return v.saveState(ctx, state)
}

// Stats reports VaultState plus oldest/newest timestamps.
type Stats struct {
	types.VaultState
	OldestTimestamp float64
	NewestTimestamp float64
}

// Stats returns the vault's current state and timestamp range.
func (v *Vault) Stats(ctx context.Context) (Stats, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return Stats{}, err
	}
	total, err := v.store.ItemCount(ctx)
	if err != nil {
		return Stats{}, err
	}

	var oldest, newest float64
	if v.index != nil {
		vecs, _, _, err := v.store.LoadAll(ctx)
		if err != nil {
			return Stats{}, err
		}
		for i, vec := range vecs {
			if i == 0 || vec.Timestamp < oldest {
				oldest = vec.Timestamp
			}
			if vec.Timestamp > newest {
				newest = vec.Timestamp
			}
		}
	}

	return Stats{
		VaultState: types.VaultState{
			VectorCount: total,
			Dims:        v.dims,
			LastAccess:  v.lastAccess,
			CreatedAt:   v.createdAt,
		},
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
	}, nil
}

// WarmthInfo is the response to Warmth.
type WarmthInfo struct {
	IsWarm      bool
	VectorCount int
	HotVectors  int
	LastActive  float64
	Loaded      bool
}

// Ping verifies this vault's backing SQLite connection is reachable,
// independent of whether the vault has been hydrated yet.
func (v *Vault) Ping(ctx context.Context) error {
	return v.store.Ping(ctx)
}

// Warmth reports whether this vault is currently hydrated and, if a warmth
// registry is configured, whether a peer process last touched it recently.
func (v *Vault) Warmth(ctx context.Context) (WarmthInfo, error) {
	info := WarmthInfo{Loaded: v.loaded, LastActive: v.lastAccess}
	if v.index != nil {
		info.HotVectors = v.index.Len()
	}
	total, err := v.store.ItemCount(ctx)
	if err != nil {
		return WarmthInfo{}, err
	}
	info.VectorCount = int(total)

	if v.warmth != nil {
		warm, err := v.warmth.Warm(ctx, v.Name, time.Now(), v.hibernateAfter)
		if err == nil {
			info.IsWarm = warm
		}
	} else {
		info.IsWarm = v.loaded
	}
	return info, nil
}

// ArchivalStats is the response to ArchivalStats.
type ArchivalStats struct {
	Total          int64
	Archived       int64
	BytesArchived  int64
	OldestArchived float64
	NewestArchived float64
}

// ArchivalStats reports how many vectors fall strictly before cutoff (the
// same bound Delete's olderThan uses), without
// deleting anything — offline archival tooling uses this to size a job
// before running Delete(olderThan=cutoff).
func (v *Vault) ArchivalStats(ctx context.Context, cutoff float64) (ArchivalStats, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return ArchivalStats{}, err
	}
	total, err := v.store.ItemCount(ctx)
	if err != nil {
		return ArchivalStats{}, err
	}

	vecs, items, blobs, err := v.store.LoadAll(ctx)
	if err != nil {
		return ArchivalStats{}, err
	}
	contentByID := make(map[uint64]string, len(items))
	for _, it := range items {
		contentByID[it.ID] = it.Content
	}

	var stats ArchivalStats
	stats.Total = total
	first := true
	for _, vec := range vecs {
		if vec.Timestamp >= cutoff {
			continue
		}
		stats.Archived++
		stats.BytesArchived += int64(len(blobs[vec.ID]) + len(contentByID[vec.ID]))
		if first || vec.Timestamp < stats.OldestArchived {
			stats.OldestArchived = vec.Timestamp
			first = false
		}
		if vec.Timestamp > stats.NewestArchived {
			stats.NewestArchived = vec.Timestamp
		}
	}
	return stats, nil
}

// ExportItem is one logical record in an Export dump: an Item plus its raw
// vector, base64-encoded in vectorindex's little-endian f32 layout.
type ExportItem struct {
	ID        uint64  `json:"id"`
	Content   string  `json:"content"`
	Role      types.Role `json:"role"`
	Model     string  `json:"model,omitempty"`
	Timestamp float64 `json:"timestamp"`
	Embedding string  `json:"embedding"` // base64 little-endian f32
}

// ExportDump is the full logical dump returned by Export: every Item plus
// its vector and the current VaultState, usable for migration between
// Vault instances.
type ExportDump struct {
	State types.VaultState `json:"state"`
	Items []ExportItem     `json:"items"`
}

// Export renders a full logical dump of this vault's contents, matching the
// shape bulk_store's JSONL input and BulkStore's tracking were designed
// around: every Item plus its raw embedding and the current VaultState.
func (v *Vault) Export(ctx context.Context) (ExportDump, error) {
	if err := v.ensureHydrated(ctx); err != nil {
		return ExportDump{}, err
	}
	state, err := v.loadState(ctx)
	if err != nil {
		return ExportDump{}, err
	}
	_, items, blobs, err := v.store.LoadAll(ctx)
	if err != nil {
		return ExportDump{}, err
	}

	dump := ExportDump{State: state, Items: make([]ExportItem, 0, len(items))}
	for _, it := range items {
		dump.Items = append(dump.Items, ExportItem{
			ID: it.ID, Content: it.Content, Role: it.Role, Model: it.Model, Timestamp: it.Timestamp,
			Embedding: base64.StdEncoding.EncodeToString(blobs[it.ID]),
		})
	}
	return dump, nil
}

// embeddingBlob renders embedding in vectorindex's little-endian f32 layout
// so the persisted blob and an in-memory index entry never drift apart.
func embeddingBlob(embedding []float32) []byte {
	out := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func encodeVaultState(s types.VaultState) string {
	raw, err := json.Marshal(s)
	if err != nil {
		// VaultState has no field that can fail to marshal (no channels,
		// funcs, or cyclic pointers), so this is unreachable in practice.
		return "{}"
	}
	return string(raw)
}

func decodeVaultState(raw string) (types.VaultState, error) {
	var s types.VaultState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return types.VaultState{}, vaulterrors.NewInternalError("decode vault state", err)
	}
	return s, nil
}
