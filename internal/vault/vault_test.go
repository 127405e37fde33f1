package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultmemory/internal/embeddings"
	"vaultmemory/internal/persistence"
	"vaultmemory/internal/storage"
	"vaultmemory/pkg/types"
)

// noopMirror discards every write; used where tests don't care about
// replica mirroring behavior.
type noopMirror struct{ upserts int }

func (m *noopMirror) Upsert(_ context.Context, _ storage.ReplicaPoint) (int, error) {
	m.upserts++
	return 1, nil
}
func (m *noopMirror) Delete(_ context.Context, _ uint64) error { return nil }

func newTestVault(t *testing.T) (*Vault, *embeddings.MockService) {
	t.Helper()
	store, err := persistence.Open(context.Background(), t.TempDir(), "test-vault")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embedder := embeddings.NewMockService(8)
	v := Open("test-vault", store, embedder, &noopMirror{}, nil, time.Minute)
	return v, embedder
}

func TestStorePinsDimsAndIsImmediatelySearchable(t *testing.T) {
	v, embedder := newTestVault(t)
	ctx := context.Background()

	emb, err := embedder.Embed(ctx, "hello world")
	require.NoError(t, err)

	result, err := v.Store(ctx, emb, "hello world", types.RoleUser, "gpt", "req-1")
	require.NoError(t, err)
	assert.True(t, result.Stored)
	assert.EqualValues(t, 1, result.ID)

	search, err := v.Search(ctx, emb, 5, nil, nil)
	require.NoError(t, err)
	require.Len(t, search.Results, 1)
	assert.Equal(t, "hello world", search.Results[0].Content)
	assert.Equal(t, 1, search.HotVectors)
}

func TestStoreDuplicateContentIsRejected(t *testing.T) {
	v, embedder := newTestVault(t)
	ctx := context.Background()
	emb, _ := embedder.Embed(ctx, "same content")

	first, err := v.Store(ctx, emb, "same content", types.RoleUser, "", "")
	require.NoError(t, err)
	assert.True(t, first.Stored)

	second, err := v.Store(ctx, emb, "same content", types.RoleUser, "", "")
	require.NoError(t, err)
	assert.False(t, second.Stored)
	assert.Equal(t, "duplicate", second.Reason)
	assert.Equal(t, first.ID, second.ID)
}

func TestStoreRejectsDimensionMismatch(t *testing.T) {
	v, embedder := newTestVault(t)
	ctx := context.Background()
	emb, _ := embedder.Embed(ctx, "pin dims")
	_, err := v.Store(ctx, emb, "pin dims", types.RoleUser, "", "")
	require.NoError(t, err)

	_, err = v.Store(ctx, []float32{1, 2, 3}, "wrong width", types.RoleUser, "", "")
	require.Error(t, err)
}

func TestDeleteByIDsRemovesFromIndexAndStore(t *testing.T) {
	v, embedder := newTestVault(t)
	ctx := context.Background()
	emb, _ := embedder.Embed(ctx, "to delete")
	stored, err := v.Store(ctx, emb, "to delete", types.RoleUser, "", "")
	require.NoError(t, err)

	del, err := v.Delete(ctx, []uint64{stored.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, del.Deleted)
	assert.EqualValues(t, 0, del.TotalVectors)

	search, err := v.Search(ctx, emb, 5, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, search.Results)
}

func TestResetZeroesDimsSoNextStoreRepins(t *testing.T) {
	v, embedder := newTestVault(t)
	ctx := context.Background()
	emb, _ := embedder.Embed(ctx, "a")
	_, err := v.Store(ctx, emb, "a", types.RoleUser, "", "")
	require.NoError(t, err)
	require.NoError(t, v.Reset(ctx))

	_, err = v.Store(ctx, []float32{1, 2, 3}, "different width now fine", types.RoleUser, "", "")
	require.NoError(t, err)
}

func TestStoreChunkedEmitsAndEmbedsOnSentenceBoundary(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	longText := ""
	for i := 0; i < 40; i++ {
		longText += "This is sentence number filler text used to grow the buffer. "
	}
	result, err := v.StoreChunked(ctx, longText, types.RoleUser)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ChunksEmbedded)
}

func TestBulkStoreTracksReplicaSync(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	result, err := v.BulkStore(ctx, []BulkLine{
		{Content: "line one", Role: types.RoleUser},
		{Content: "line two", Role: types.RoleAssistant},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.D1Synced)
	assert.Equal(t, 2, result.D1ChunksSynced)
}

func TestBulkStoreRejectsEmptyInput(t *testing.T) {
	v, _ := newTestVault(t)
	_, err := v.BulkStore(context.Background(), nil)
	require.Error(t, err)
}

func TestWarmthReflectsLoadedState(t *testing.T) {
	v, embedder := newTestVault(t)
	ctx := context.Background()
	emb, _ := embedder.Embed(ctx, "warm me up")
	_, err := v.Store(ctx, emb, "warm me up", types.RoleUser, "", "")
	require.NoError(t, err)

	info, err := v.Warmth(ctx)
	require.NoError(t, err)
	assert.True(t, info.Loaded)
	assert.Equal(t, 1, info.HotVectors)
}
