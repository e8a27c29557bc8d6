package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driven"
)

// mockHandle implements driven.EmbedderHandle for tests.
type mockHandle struct{ dim int }

func (h mockHandle) Dim() int        { return h.dim }
func (h mockHandle) ModelID() string { return "mock-model" }

// mockEmbedder implements driven.EmbeddingProvider for tests, returning a
// fixed vector regardless of input text.
type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Load(_ context.Context, _, _ string) (driven.EmbedderHandle, error) {
	return mockHandle{dim: len(m.vec)}, nil
}

func (m *mockEmbedder) Encode(_ context.Context, _ driven.EmbedderHandle, texts []string, _ int) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vec
	}
	return out, nil
}

func (m *mockEmbedder) Close() error { return nil }

// mockStore implements driven.VectorStore for tests, returning canned
// collections and rows rather than touching disk.
type mockStore struct {
	rows    map[string][]domain.Row
	scanErr error
	getErr  error
}

func (m *mockStore) CreateCollection(context.Context, domain.Collection) error { return nil }
func (m *mockStore) DeleteCollection(context.Context, string) error           { return nil }
func (m *mockStore) ListCollections(context.Context) ([]domain.CollectionInfo, error) {
	return nil, nil
}

func (m *mockStore) Upsert(_ context.Context, name string, rows []domain.Row) error {
	if m.rows == nil {
		m.rows = make(map[string][]domain.Row)
	}
	m.rows[name] = append(m.rows[name], rows...)
	return nil
}

func (m *mockStore) GetByID(_ context.Context, name, id string) (domain.Row, error) {
	if m.getErr != nil {
		return domain.Row{}, m.getErr
	}
	for _, r := range m.rows[name] {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Row{}, domain.ErrNotFound
}

func (m *mockStore) Scan(_ context.Context, name string, predicate domain.Predicate, limit int, _ *domain.Order) ([]domain.Row, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var out []domain.Row
	for _, r := range m.rows[name] {
		if predicate == nil || predicate.Evaluate(r.Metadata) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) Query(_ context.Context, name string, qvec []float32, k int, predicate domain.Predicate, _ domain.RetrievalMode) ([]domain.Scored, error) {
	var out []domain.Scored
	for _, r := range m.rows[name] {
		if predicate != nil && !predicate.Evaluate(r.Metadata) {
			continue
		}
		out = append(out, domain.Scored{Row: r, Distance: cosineDistance(qvec, r.Vector)})
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *mockStore) Count(_ context.Context, name string) (int, error) { return len(m.rows[name]), nil }
func (m *mockStore) Close() error                                      { return nil }

func TestSearchEngine_Search_ScoreIsOneMinusDistance(t *testing.T) {
	store := &mockStore{rows: map[string][]domain.Row{
		"msgs": {
			{ID: "m1", Document: "hello", Vector: []float32{1, 0}, Metadata: domain.Metadata{}},
			{ID: "m2", Document: "world", Vector: []float32{0, 1}, Metadata: domain.Metadata{}},
		},
	}}
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	engine := NewSearchEngine(store, embedder, mockHandle{dim: 2})

	results, err := engine.Search(context.Background(), domain.SearchRequest{
		Collection: "msgs",
		QueryText:  "hello",
		K:          2,
		Mode:       domain.RetrievalKNN,
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 1.0, results[0].Score, 0.0001)
	assert.Equal(t, "m1", results[0].ID)
}

func TestSearchEngine_Search_ExcludeNoise(t *testing.T) {
	store := &mockStore{rows: map[string][]domain.Row{
		"msgs": {
			{ID: "m1", Vector: []float32{1, 0}, Metadata: domain.Metadata{"is_noise": domain.BoolValue(false)}},
			{ID: "m2", Vector: []float32{1, 0}, Metadata: domain.Metadata{"is_noise": domain.BoolValue(true)}},
		},
	}}
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	engine := NewSearchEngine(store, embedder, mockHandle{dim: 2})

	results, err := engine.Search(context.Background(), domain.SearchRequest{
		Collection: "msgs",
		QueryText:  "x",
		K:          10,
		Filter:     domain.QueryFilter{ExcludeNoise: true},
	})

	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "m2", r.ID)
	}
}

func TestSearchEngine_Search_InvalidK(t *testing.T) {
	engine := NewSearchEngine(&mockStore{}, &mockEmbedder{vec: []float32{1}}, mockHandle{dim: 1})

	_, err := engine.Search(context.Background(), domain.SearchRequest{Collection: "x", K: 0})
	require.Error(t, err)
}

func TestSearchEngine_Reconstruct(t *testing.T) {
	store := &mockStore{rows: map[string][]domain.Row{
		"msgs": {
			{ID: "m1", Metadata: domain.Metadata{"contact": domain.StringValue("a"), "timestamp": domain.NumberValue(1)}},
			{ID: "m2", Metadata: domain.Metadata{"contact": domain.StringValue("a"), "timestamp": domain.NumberValue(2)}},
			{ID: "m3", Metadata: domain.Metadata{"contact": domain.StringValue("a"), "timestamp": domain.NumberValue(3)}},
			{ID: "other", Metadata: domain.Metadata{"contact": domain.StringValue("b"), "timestamp": domain.NumberValue(1)}},
		},
	}}
	engine := NewSearchEngine(store, &mockEmbedder{}, mockHandle{})

	result, err := engine.Reconstruct(context.Background(), domain.ReconstructionRequest{
		Collection:   "msgs",
		MessageID:    "m2",
		WindowBefore: 1,
		WindowAfter:  1,
	})

	require.NoError(t, err)
	assert.Equal(t, "m2", result.Target.ID)
	require.Len(t, result.Before, 1)
	assert.Equal(t, "m1", result.Before[0].ID)
	require.Len(t, result.After, 1)
	assert.Equal(t, "m3", result.After[0].ID)
}

func TestSearchEngine_Reconstruct_NotFound(t *testing.T) {
	store := &mockStore{getErr: domain.ErrNotFound}
	engine := NewSearchEngine(store, &mockEmbedder{}, mockHandle{})

	_, err := engine.Reconstruct(context.Background(), domain.ReconstructionRequest{
		Collection: "msgs",
		MessageID:  "missing",
	})

	require.Error(t, err)
}

func TestSearchEngine_MultiSearch_MergesByScore(t *testing.T) {
	storeA := &mockStore{rows: map[string][]domain.Row{
		"a": {{ID: "x1", Vector: []float32{1, 0}, Metadata: domain.Metadata{}}},
	}}
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	engineA := NewSearchEngine(storeA, embedder, mockHandle{dim: 2})

	results, err := engineA.MultiSearch(context.Background(), []domain.SearchRequest{
		{Collection: "a", QueryText: "x", K: 5},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Collection)
}

// cosineDistance is a small test-local helper matching the store's expected
// distance semantics for the canned vectors above.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos
}
