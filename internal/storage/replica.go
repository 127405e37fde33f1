// Package storage provides the always-warm Replica index: a partial,
// eventually-consistent mirror of each Vault's most recent chunks in
// Qdrant, used only by the Hot/Cold race's cold leg. The replica is never
// the source of truth — Persistence is — and its absence must never stop
// a store/search from completing.
package storage

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"vaultmemory/internal/config"
	"vaultmemory/internal/logging"
	"vaultmemory/pkg/types"
)

const (
	connectionStatusError = "error"
	connectionStatusOK    = "connected"
)

// ReplicaPoint is a single chunk mirrored into the replica.
type ReplicaPoint struct {
	ID        uint64
	MemoryKey string
	Embedding []float32
	Content   string
	Role      string
	Timestamp float64
}

// Replica wraps a Qdrant collection holding the chunks mirrored for every
// memory key across all tenants. It keeps every chunk upserted for a key;
// nothing here trims a key to the last ReplicaDepth chunks.
type Replica struct {
	client         *qdrant.Client
	config         *config.QdrantConfig
	collectionName string
	status         string
}

// NewReplica creates an unconnected Replica; call Initialize before use.
func NewReplica(cfg *config.QdrantConfig) *Replica {
	collection := cfg.Collection
	if collection == "" {
		collection = "vault_replica"
	}
	return &Replica{config: cfg, collectionName: collection, status: "unknown"}
}

// Initialize connects to Qdrant and ensures the replica collection exists,
// sized for cfg.Embedding.Dimensions.
func (r *Replica) Initialize(ctx context.Context, dims int) error {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   r.config.Host,
		Port:                   r.config.Port,
		APIKey:                 r.config.APIKey,
		UseTLS:                 r.config.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		r.status = connectionStatusError
		return fmt.Errorf("replica: create qdrant client: %w", err)
	}
	r.client = client

	collections, err := client.ListCollections(ctx)
	if err != nil {
		r.status = connectionStatusError
		return fmt.Errorf("replica: list collections: %w", err)
	}

	exists := false
	for _, name := range collections {
		if name == r.collectionName {
			exists = true
			break
		}
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: r.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			r.status = connectionStatusError
			return fmt.Errorf("replica: create collection %s: %w", r.collectionName, err)
		}
		logging.Info("created replica collection", "collection", r.collectionName)
	}

	r.status = connectionStatusOK
	return nil
}

// Upsert mirrors a single chunk into the replica. Interactive stores call
// this fire-and-forget; bulk stores await it and report sync status.
func (r *Replica) Upsert(ctx context.Context, p ReplicaPoint) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(p.ID),
		Vectors: qdrant.NewVectors(toFloat32Slice(p.Embedding)...),
		Payload: qdrant.NewValueMap(map[string]any{
			"memory_key": p.MemoryKey,
			"content":    p.Content,
			"role":       p.Role,
			"timestamp":  p.Timestamp,
		}),
	}
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("replica: upsert: %w", err)
	}
	return nil
}

// Delete removes a chunk from the replica by ID.
func (r *Replica) Delete(ctx context.Context, id uint64) error {
	_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(id)),
	})
	if err != nil {
		return fmt.Errorf("replica: delete: %w", err)
	}
	return nil
}

// Search runs the cold leg of the Hot/Cold race: a similarity search over
// this memory key's mirrored chunks only.
func (r *Replica) Search(ctx context.Context, memoryKey string, query []float32, k int) ([]types.SearchResult, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("memory_key", memoryKey),
		},
	}

	resp, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collectionName,
		Query:          qdrant.NewQuery(toFloat32Slice(query)...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("replica: search: %w", err)
	}

	out := make([]types.SearchResult, 0, len(resp))
	for _, hit := range resp {
		fields := hit.GetPayload()
		out = append(out, types.SearchResult{
			ID:        idFromPoint(hit.GetId()),
			Score:     hit.GetScore(),
			Content:   fields["content"].GetStringValue(),
			Role:      types.Role(fields["role"].GetStringValue()),
			Timestamp: fields["timestamp"].GetDoubleValue(),
			Source:    "replica",
		})
	}
	return out, nil
}

// Count estimates how many chunks the replica holds for memoryKey, used by
// the Hot/Cold race to decide whether the replica alone already covers the
// whole vault.
func (r *Replica) Count(ctx context.Context, memoryKey string) (int64, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("memory_key", memoryKey),
		},
	}
	exact := true
	count, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.collectionName,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("replica: count: %w", err)
	}
	return int64(count), nil
}

// HealthCheck reports whether the underlying Qdrant connection is usable.
func (r *Replica) HealthCheck(ctx context.Context) error {
	_, err := r.client.ListCollections(ctx)
	return err
}

// Close releases the underlying connection.
func (r *Replica) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func idFromPoint(id *qdrant.PointId) uint64 {
	if id == nil {
		return 0
	}
	return id.GetNum()
}

func toFloat32Slice(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
