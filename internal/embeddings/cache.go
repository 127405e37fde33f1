package embeddings

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// EmbeddingCache is an LRU cache of text -> embedding vector, keyed on a
// hash of (model, text) so switching a Vault's configured embedding model
// never serves a stale vector computed by a different model under the same
// text. Eviction is bounded by both entry count and estimated byte size,
// since a 256-dim and a 3072-dim model produce vectors an order of
// magnitude apart in size for the same maxSize.
type EmbeddingCache struct {
	mu       sync.RWMutex
	model    string
	cache    map[string]*cacheEntry
	lruList  *list.List
	maxSize  int
	maxBytes int64
	bytes    int64
	ttl      time.Duration

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key        string
	value      []float32
	element    *list.Element
	createdAt  time.Time
	accessedAt time.Time
}

// vectorBytes estimates a []float32's footprint: 4 bytes per component,
// ignoring map/list overhead (the overhead is small and constant per entry,
// so it doesn't change the eviction decision between dimension sizes).
func vectorBytes(v []float32) int64 {
	return int64(len(v)) * 4
}

// NewEmbeddingCache creates an LRU cache for model's embeddings, holding up
// to maxSize entries or maxSize*dims*4 bytes, whichever is hit first, each
// entry alive for ttl.
func NewEmbeddingCache(maxSize int, ttl time.Duration, model string, dims int) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if dims <= 0 {
		dims = 1536 // OpenAI's text-embedding-3-small default, used only to size the byte budget
	}

	return &EmbeddingCache{
		model:    model,
		cache:    make(map[string]*cacheEntry),
		lruList:  list.New(),
		maxSize:  maxSize,
		maxBytes: int64(maxSize) * int64(dims) * 4,
		ttl:      ttl,
	}
}

// Get retrieves a cached embedding for text, or (nil, false) on a miss or
// expired entry.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.hashKey(text)
	entry, exists := c.cache[key]
	if !exists {
		c.misses++
		return nil, false
	}

	if time.Since(entry.createdAt) > c.ttl {
		c.removeEntry(entry)
		c.misses++
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	entry.accessedAt = time.Now()
	c.hits++

	result := make([]float32, len(entry.value))
	copy(result, entry.value)
	return result, true
}

// Set stores text's embedding, evicting the least-recently-used entries
// until both the count and byte budget are back under their caps.
func (c *EmbeddingCache) Set(text string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.hashKey(text)
	now := time.Now()

	if entry, exists := c.cache[key]; exists {
		c.bytes += vectorBytes(embedding) - vectorBytes(entry.value)
		entry.value = append(entry.value[:0], embedding...)
		entry.createdAt = now
		entry.accessedAt = now
		c.lruList.MoveToFront(entry.element)
		c.evictOverBudget()
		return
	}

	entry := &cacheEntry{key: key, value: append([]float32(nil), embedding...), createdAt: now, accessedAt: now}
	entry.element = c.lruList.PushFront(entry)
	c.cache[key] = entry
	c.bytes += vectorBytes(entry.value)

	c.evictOverBudget()
}

func (c *EmbeddingCache) evictOverBudget() {
	for c.lruList.Len() > c.maxSize || c.bytes > c.maxBytes {
		oldest := c.lruList.Back()
		if oldest == nil {
			return
		}
		c.removeEntry(oldest.Value.(*cacheEntry))
		c.evictions++
	}
}

// Clear discards every cached entry.
func (c *EmbeddingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cacheEntry)
	c.lruList = list.New()
	c.bytes = 0
}

// Stats reports cache occupancy and hit rate.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalRequests := c.hits + c.misses
	var hitRate float64
	if totalRequests > 0 {
		hitRate = float64(c.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:      c.lruList.Len(),
		MaxSize:   c.maxSize,
		Bytes:     c.bytes,
		MaxBytes:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
		TTL:       c.ttl,
	}
}

// CleanExpired walks the LRU list from the oldest entry forward, removing
// every entry past its ttl. Stops at the first unexpired entry since
// everything in front of it is newer.
func (c *EmbeddingCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cleaned int
	current := c.lruList.Back()
	for current != nil {
		entry := current.Value.(*cacheEntry)
		if time.Since(entry.createdAt) <= c.ttl {
			break
		}
		next := current.Prev()
		c.removeEntry(entry)
		cleaned++
		current = next
	}
	return cleaned
}

// hashKey folds the configured model into the cache key alongside the
// text, so re-pointing a Vault at a different embedding model (different
// dimensionality, different vector space entirely) can never serve a hit
// computed by the old one.
func (c *EmbeddingCache) hashKey(text string) string {
	hash := sha256.Sum256([]byte(c.model + "\x00" + text))
	return fmt.Sprintf("%x", hash)
}

func (c *EmbeddingCache) removeEntry(entry *cacheEntry) {
	delete(c.cache, entry.key)
	c.lruList.Remove(entry.element)
	c.bytes -= vectorBytes(entry.value)
}

// CacheStats is a snapshot of EmbeddingCache's counters.
type CacheStats struct {
	Size      int           `json:"size"`
	MaxSize   int           `json:"max_size"`
	Bytes     int64         `json:"bytes"`
	MaxBytes  int64         `json:"max_bytes"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Evictions int64         `json:"evictions"`
	HitRate   float64       `json:"hit_rate"`
	TTL       time.Duration `json:"ttl"`
}
