// Package embeddings provides the opaque text-to-vector contract the rest
// of the Vault runtime depends on, plus the caching/retry/circuit-breaker
// decorators that wrap a concrete provider.
package embeddings

import (
	"context"
)

// Service turns text into the f32 vectors the VectorIndex stores. How a
// vector is produced (remote API, local model) is deliberately opaque to
// every caller.
type Service interface {
	// Embed creates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch creates embeddings for multiple texts in one round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the width of vectors this service produces.
	Dimensions() int

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}
