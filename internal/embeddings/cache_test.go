package embeddings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCacheHitsAndMisses(t *testing.T) {
	c := NewEmbeddingCache(10, time.Hour, "text-embedding-3-small", 4)

	_, ok := c.Get("hello")
	assert.False(t, ok)

	c.Set("hello", []float32{1, 2, 3, 4})
	got, ok := c.Get("hello")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestEmbeddingCacheSeparatesModels(t *testing.T) {
	// Same text, two different models configured: a cache keyed on text
	// alone would hand the second model a vector from the first model's
	// space, which is silently wrong rather than loudly broken.
	small := NewEmbeddingCache(10, time.Hour, "text-embedding-3-small", 4)
	large := NewEmbeddingCache(10, time.Hour, "text-embedding-3-large", 4)

	small.Set("hello", []float32{1, 2, 3, 4})
	_, ok := large.Get("hello")
	assert.False(t, ok)
}

func TestEmbeddingCacheEvictsOnByteBudget(t *testing.T) {
	// 12 entries * 2 dims * 4 bytes = 96 byte budget; a 4th 8-dim vector
	// (32 bytes each) must evict the oldest even though the entry count cap
	// (maxSize 12) isn't close to being hit.
	c := NewEmbeddingCache(12, time.Hour, "big-model", 2)

	vec := func(n int) []float32 { return make([]float32, n) }
	c.Set("a", vec(8))
	c.Set("b", vec(8))
	c.Set("c", vec(8))
	c.Set("d", vec(8))

	stats := c.Stats()
	assert.LessOrEqual(t, stats.Bytes, stats.MaxBytes)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted to stay under the byte budget")

	_, ok = c.Get("d")
	assert.True(t, ok)
}

func TestEmbeddingCacheEvictsOnEntryCount(t *testing.T) {
	c := NewEmbeddingCache(2, time.Hour, "small-model", 4)

	c.Set("a", []float32{1, 1, 1, 1})
	c.Set("b", []float32{2, 2, 2, 2})
	c.Set("c", []float32{3, 3, 3, 3})

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestEmbeddingCacheRespectsTTL(t *testing.T) {
	c := NewEmbeddingCache(10, 10*time.Millisecond, "model", 4)
	c.Set("hello", []float32{1, 2, 3, 4})

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("hello")
	assert.False(t, ok)
}

func TestEmbeddingCacheCleanExpired(t *testing.T) {
	c := NewEmbeddingCache(10, 10*time.Millisecond, "model", 4)
	c.Set("hello", []float32{1, 2, 3, 4})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Stats().Size)
}

func TestEmbeddingCacheClear(t *testing.T) {
	c := NewEmbeddingCache(10, time.Hour, "model", 4)
	c.Set("hello", []float32{1, 2, 3, 4})
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(0), stats.Bytes)
}
