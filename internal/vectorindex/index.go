// Package vectorindex implements the in-memory, flat-array vector index
// that backs every Vault: brute-force cosine similarity over L2-normalized
// vectors, a bounded min-heap top-k selection, and a compact binary
// serialization format for handoff to the persistence layer.
package vectorindex

import (
	"bytes"
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"vaultmemory/pkg/types"
)

// Index is a flat, brute-force vector index for a single Vault. All
// embeddings share one dimensionality, pinned on the first Add. Index is
// safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	dims  int
	ids   []uint64
	times []float64
	// vecs is laid out as one contiguous slice, dims floats per row, to
	// keep the hot search loop allocation-free.
	vecs []float32
}

// New creates an empty index. dims of 0 means "unpinned": the first Add
// call pins the dimensionality for the lifetime of the index.
func New(dims int) *Index {
	return &Index{dims: dims}
}

// Dims returns the pinned dimensionality, or 0 if nothing has been added yet.
func (idx *Index) Dims() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dims
}

// Len returns the number of vectors currently held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Add L2-normalizes embedding and appends it under id/timestamp. It returns
// ErrDimensionMismatch if the index is already pinned to a different width.
func (idx *Index) Add(id uint64, embedding []float32, timestamp float64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dims == 0 {
		idx.dims = len(embedding)
	}
	if err := types.ValidateDims(idx.dims, len(embedding)); err != nil {
		return err
	}

	normalized := normalize(embedding)
	idx.ids = append(idx.ids, id)
	idx.times = append(idx.times, timestamp)
	idx.vecs = append(idx.vecs, normalized...)
	return nil
}

// Remove drops the vector for id, if present, compacting the backing arrays.
func (idx *Index) Remove(id uint64) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, existing := range idx.ids {
		if existing != id {
			continue
		}
		idx.ids = append(idx.ids[:i], idx.ids[i+1:]...)
		idx.times = append(idx.times[:i], idx.times[i+1:]...)
		start, end := i*idx.dims, (i+1)*idx.dims
		idx.vecs = append(idx.vecs[:start], idx.vecs[end:]...)
		return true
	}
	return false
}

// scored is a single candidate during top-k selection.
type scored struct {
	id    uint64
	score float32
	row   int
}

// minHeap keeps the k best-so-far candidates with the worst on top, so a
// single comparison decides whether a new candidate displaces it.
type minHeap []scored

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Tie-break: the heap evicts its root first, so rank the higher id as
	// "worse" — this keeps the lower id when both compete for the last slot.
	return h[i].id > h[j].id
}
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SearchTopK returns the k nearest neighbors of query by cosine similarity,
// highest score first. query is L2-normalized internally; it is not
// mutated. If filter is non-nil, rows for which it returns false are
// skipped entirely (used for time-window filtering in the temporal planner).
func (idx *Index) SearchTopK(query []float32, k int, filter func(id uint64, timestamp float64) bool) ([]types.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := types.ValidateDims(idx.dims, len(query)); err != nil {
		return nil, err
	}
	if k <= 0 || len(idx.ids) == 0 {
		return nil, nil
	}

	q := normalize(query)
	h := make(minHeap, 0, k)
	heap.Init(&h)

	for row := range idx.ids {
		id := idx.ids[row]
		ts := idx.times[row]
		if filter != nil && !filter(id, ts) {
			continue
		}
		start := row * idx.dims
		score := dot(q, idx.vecs[start:start+idx.dims])
		if h.Len() < k {
			heap.Push(&h, scored{id: id, score: score, row: row})
			continue
		}
		if score > h[0].score || (score == h[0].score && id < h[0].id) {
			heap.Pop(&h)
			heap.Push(&h, scored{id: id, score: score, row: row})
		}
	}

	results := make([]types.SearchResult, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		top := heap.Pop(&h).(scored)
		results[i] = types.SearchResult{ID: top.id, Score: top.score, Timestamp: idx.times[top.row]}
	}
	return results, nil
}

// DecodeEmbedding unpacks a little-endian f32 blob (as written by
// vault.embeddingBlob / this package's own Serialize) back into a vector of
// width dims.
func DecodeEmbedding(blob []byte, dims int) []float32 {
	out := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(blob); i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// FilterByTime materializes a new index sharing dims but containing only
// entries with min <= timestamp <= max. Used by offline maintenance tools,
// not the request hot path.
func (idx *Index) FilterByTime(min, max float64) *Index {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := New(idx.dims)
	for row, ts := range idx.times {
		if ts < min || ts > max {
			continue
		}
		start := row * idx.dims
		out.ids = append(out.ids, idx.ids[row])
		out.times = append(out.times, ts)
		out.vecs = append(out.vecs, idx.vecs[start:start+idx.dims]...)
	}
	return out
}

// binary layout: [dims:u32][count:u32][reserved:u32][ids:u32*count]
// [padding to 8-byte boundary][timestamps:f64*count][vectors:f32*dims*count]
const headerSize = 12

// Serialize renders the index to the on-disk binary format. IDs must fit in
// 32 bits; an index holding an ID above 2^32-1 fails serialization rather
// than silently truncating it.
func (idx *Index) Serialize() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := len(idx.ids)
	for _, id := range idx.ids {
		if id > math.MaxUint32 {
			return nil, fmt.Errorf("vectorindex: id %d exceeds 32-bit serialization width", id)
		}
	}

	idBlock := count * 4
	padding := (8 - (headerSize+idBlock)%8) % 8
	tsBlock := count * 8
	vecBlock := count * idx.dims * 4

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+idBlock+padding+tsBlock+vecBlock))
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(idx.dims))
	binary.LittleEndian.PutUint32(header[4:8], uint32(count))
	binary.LittleEndian.PutUint32(header[8:12], 0)
	buf.Write(header)

	idBuf := make([]byte, 4)
	for _, id := range idx.ids {
		binary.LittleEndian.PutUint32(idBuf, uint32(id))
		buf.Write(idBuf)
	}
	buf.Write(make([]byte, padding))

	tsBuf := make([]byte, 8)
	for _, ts := range idx.times {
		binary.LittleEndian.PutUint64(tsBuf, math.Float64bits(ts))
		buf.Write(tsBuf)
	}

	vecBuf := make([]byte, 4)
	for _, f := range idx.vecs {
		binary.LittleEndian.PutUint32(vecBuf, math.Float32bits(f))
		buf.Write(vecBuf)
	}

	return buf.Bytes(), nil
}

// Deserialize rebuilds an index from the binary format written by Serialize.
func Deserialize(data []byte) (*Index, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("vectorindex: payload too short for header (%d bytes)", len(data))
	}
	dims := int(binary.LittleEndian.Uint32(data[0:4]))
	count := int(binary.LittleEndian.Uint32(data[4:8]))

	idBlock := count * 4
	padding := (8 - (headerSize+idBlock)%8) % 8
	tsBlock := count * 8
	vecBlock := count * dims * 4
	want := headerSize + idBlock + padding + tsBlock + vecBlock
	if len(data) < want {
		return nil, fmt.Errorf("vectorindex: payload truncated: want %d bytes, got %d", want, len(data))
	}

	offset := headerSize
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		ids[i] = uint64(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}
	offset += padding

	times := make([]float64, count)
	for i := 0; i < count; i++ {
		times[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[offset : offset+8]))
		offset += 8
	}

	vecs := make([]float32, count*dims)
	for i := range vecs {
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	return &Index{dims: dims, ids: ids, times: times, vecs: vecs}, nil
}
