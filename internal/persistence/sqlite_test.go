package persistence

import (
	"context"
	"testing"

	"vaultmemory/pkg/types"
)

func TestSaveAndLoadVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(ctx, dir, "tenant-a")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	vec := types.Vector{ID: 1, Timestamp: 1000}
	item := types.Item{ID: 1, Content: "hello world", Role: types.RoleUser, ContentHash: types.ContentHash("hello world"), Timestamp: 1000}
	blob := []byte{1, 2, 3, 4}

	if err := store.SaveVector(ctx, vec, 4, item, blob); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	vecs, items, blobs, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(vecs) != 1 || len(items) != 1 {
		t.Fatalf("expected 1 vector and 1 item, got %d/%d", len(vecs), len(items))
	}
	if string(blobs[1]) != string(blob) {
		t.Fatalf("embedding blob mismatch")
	}
	if items[0].Content != "hello world" {
		t.Fatalf("unexpected content: %q", items[0].Content)
	}
}

func TestDeleteVector(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "tenant-b")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	_ = store.SaveVector(ctx, types.Vector{ID: 5, Timestamp: 1}, 1, types.Item{ID: 5, Content: "x", Role: types.RoleUser}, []byte{0})
	if err := store.DeleteVector(ctx, 5); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	vecs, items, _, _ := store.LoadAll(ctx)
	if len(vecs) != 0 || len(items) != 0 {
		t.Fatalf("expected empty store after delete")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "tenant-c")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	if v, err := store.LoadMeta(ctx, "dims"); err != nil || v != "" {
		t.Fatalf("expected empty meta, got %q err=%v", v, err)
	}
	if err := store.SaveMeta(ctx, "dims", "1536"); err != nil {
		t.Fatalf("save meta failed: %v", err)
	}
	v, err := store.LoadMeta(ctx, "dims")
	if err != nil || v != "1536" {
		t.Fatalf("expected dims=1536, got %q err=%v", v, err)
	}
}

func TestPendingBufferRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "tenant-d")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	if err := store.SavePendingBuffer(ctx, "[USER] first\n\n[ASSISTANT] second", 9, 1000); err != nil {
		t.Fatalf("save pending buffer failed: %v", err)
	}
	content, tokens, err := store.LoadPendingBuffer(ctx)
	if err != nil {
		t.Fatalf("load pending buffer failed: %v", err)
	}
	if content != "[USER] first\n\n[ASSISTANT] second" || tokens != 9 {
		t.Fatalf("unexpected pending buffer contents: %q tokens=%d", content, tokens)
	}

	if err := store.SavePendingBuffer(ctx, "", 0, 2000); err != nil {
		t.Fatalf("clear pending buffer failed: %v", err)
	}
	content, tokens, _ = store.LoadPendingBuffer(ctx)
	if content != "" || tokens != 0 {
		t.Fatalf("expected cleared pending buffer, got %q/%d", content, tokens)
	}
}

func TestMaxIDAndDeleteByIDs(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "tenant-e")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	if max, err := store.MaxID(ctx); err != nil || max != 0 {
		t.Fatalf("expected max id 0 on empty store, got %d err=%v", max, err)
	}

	_ = store.SaveVector(ctx, types.Vector{ID: 1, Timestamp: 1}, 2, types.Item{ID: 1, Content: "ab", Role: types.RoleUser}, []byte{1, 2})
	_ = store.SaveVector(ctx, types.Vector{ID: 2, Timestamp: 2}, 2, types.Item{ID: 2, Content: "cd", Role: types.RoleUser}, []byte{3, 4})

	max, err := store.MaxID(ctx)
	if err != nil || max != 2 {
		t.Fatalf("expected max id 2, got %d err=%v", max, err)
	}

	freed, err := store.DeleteByIDs(ctx, []uint64{1})
	if err != nil {
		t.Fatalf("delete by ids failed: %v", err)
	}
	if freed != 4 { // 2 embedding bytes + 2 content bytes
		t.Fatalf("expected 4 bytes freed, got %d", freed)
	}
	vecs, _, _, _ := store.LoadAll(ctx)
	if len(vecs) != 1 || vecs[0].ID != 2 {
		t.Fatalf("expected only id 2 remaining, got %+v", vecs)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "tenant-f")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	_ = store.SaveVector(ctx, types.Vector{ID: 1, Timestamp: 100}, 1, types.Item{ID: 1, Content: "old", Role: types.RoleUser, Timestamp: 100}, []byte{1})
	_ = store.SaveVector(ctx, types.Vector{ID: 2, Timestamp: 900}, 1, types.Item{ID: 2, Content: "new", Role: types.RoleUser, Timestamp: 900}, []byte{2})

	deleted, bytesDeleted, err := store.DeleteOlderThan(ctx, 500)
	if err != nil {
		t.Fatalf("delete older than failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != 1 {
		t.Fatalf("expected id 1 deleted, got %v", deleted)
	}
	if bytesDeleted != 4 { // 1 embedding byte + 3 content bytes ("old")
		t.Fatalf("expected 4 bytes freed, got %d", bytesDeleted)
	}
	vecs, _, _, _ := store.LoadAll(ctx)
	if len(vecs) != 1 || vecs[0].ID != 2 {
		t.Fatalf("expected only id 2 remaining, got %+v", vecs)
	}
}

func TestClearWipesVectorsItemsAndBuffer(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir(), "tenant-g")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	_ = store.SaveVector(ctx, types.Vector{ID: 1, Timestamp: 1}, 1, types.Item{ID: 1, Content: "x", Role: types.RoleUser}, []byte{1})
	_ = store.SavePendingBuffer(ctx, "pending", 2, 1)

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	vecs, items, _, _ := store.LoadAll(ctx)
	if len(vecs) != 0 || len(items) != 0 {
		t.Fatalf("expected empty store after clear")
	}
	content, tokens, _ := store.LoadPendingBuffer(ctx)
	if content != "" || tokens != 0 {
		t.Fatalf("expected cleared pending buffer after Clear, got %q/%d", content, tokens)
	}
}
