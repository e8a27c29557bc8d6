package hnsw

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AddAndSearch_FindsClosest(t *testing.T) {
	idx := New(2, "")
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0, 1}))
	require.NoError(t, idx.Add(ctx, "c", []float32{-1, 0}))

	hits, err := idx.Search(ctx, []float32{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestIndex_Search_ReturnsKOrdered(t *testing.T) {
	idx := New(2, "")
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		angle := float64(i) / 20
		require.NoError(t, idx.Add(ctx, string(rune('a'+i)), []float32{float32(angle), 1 - float32(angle)}))
	}

	hits, err := idx.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestIndex_Delete_ExcludesFromSearch(t *testing.T) {
	idx := New(2, "")
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0.9, 0.1}))

	require.NoError(t, idx.Delete(ctx, "a"))

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.ID)
	}
}

func TestIndex_Delete_Unknown_NotAnError(t *testing.T) {
	idx := New(2, "")
	assert.NoError(t, idx.Delete(context.Background(), "missing"))
}

func TestIndex_PersistAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.gob")
	ctx := context.Background()

	idx := New(2, path)
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0, 1}))
	require.NoError(t, idx.Close())

	reopened, err := Open(2, path)
	require.NoError(t, err)

	hits, err := reopened.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestOpen_MissingFileReturnsEmptyIndex(t *testing.T) {
	idx, err := Open(2, filepath.Join(t.TempDir(), "absent.gob"))
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Rebuild(t *testing.T) {
	idx := New(2, "")
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, "stale", []float32{5, 5}))

	require.NoError(t, idx.Rebuild(ctx, map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	ids := []string{hits[0].ID, hits[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
