package vectorindex

import (
	"testing"
)

func TestAddPinsDimensionsAndRejectsMismatch(t *testing.T) {
	idx := New(0)
	if err := idx.Add(1, []float32{1, 0, 0}, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Dims() != 3 {
		t.Fatalf("expected dims pinned to 3, got %d", idx.Dims())
	}
	if err := idx.Add(2, []float32{1, 0}, 200); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSearchTopKOrdersByCosineSimilarity(t *testing.T) {
	idx := New(0)
	_ = idx.Add(1, []float32{1, 0, 0}, 1)
	_ = idx.Add(2, []float32{0, 1, 0}, 2)
	_ = idx.Add(3, []float32{0.9, 0.1, 0}, 3)

	results, err := idx.SearchTopK([]float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 {
		t.Fatalf("expected closest match id=1, got %d", results[0].ID)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("expected descending score order")
	}
}

func TestSearchTopKAppliesTimeFilter(t *testing.T) {
	idx := New(0)
	_ = idx.Add(1, []float32{1, 0}, 100)
	_ = idx.Add(2, []float32{1, 0}, 200)

	results, err := idx.SearchTopK([]float32{1, 0}, 10, func(id uint64, ts float64) bool {
		return ts >= 150
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Fatalf("expected only id=2 to survive the filter, got %+v", results)
	}
}

func TestRemove(t *testing.T) {
	idx := New(0)
	_ = idx.Add(1, []float32{1, 0}, 1)
	_ = idx.Add(2, []float32{0, 1}, 2)

	if !idx.Remove(1) {
		t.Fatalf("expected remove to report found")
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 remaining vector, got %d", idx.Len())
	}
	results, _ := idx.SearchTopK([]float32{0, 1}, 5, nil)
	if len(results) != 1 || results[0].ID != 2 {
		t.Fatalf("expected only id=2 left, got %+v", results)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	idx := New(0)
	_ = idx.Add(10, []float32{1, 2, 3, 4}, 123.5)
	_ = idx.Add(20, []float32{4, 3, 2, 1}, 456.75)

	data, err := idx.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if restored.Dims() != 4 || restored.Len() != 2 {
		t.Fatalf("unexpected restored shape: dims=%d len=%d", restored.Dims(), restored.Len())
	}

	results, err := restored.SearchTopK([]float32{1, 2, 3, 4}, 1, nil)
	if err != nil {
		t.Fatalf("search after restore failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != 10 {
		t.Fatalf("expected id=10 to be the closest match, got %+v", results)
	}
}
