package driven

import (
	"context"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// VectorStore persists and retrieves (id, document, metadata, vector) rows
// grouped into named typed collections, per §4.2.
type VectorStore interface {
	// CreateCollection is idempotent on identical parameters; fails with
	// domain.ErrDimensionMismatch if a collection of the same name already
	// exists with a different dimension.
	CreateCollection(ctx context.Context, col domain.Collection) error

	// DeleteCollection removes all persisted state atomically. Deleting a
	// collection that does not exist is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// ListCollections returns every known collection's metadata.
	ListCollections(ctx context.Context) ([]domain.CollectionInfo, error)

	// Upsert writes rows atomically per batch; last-writer-wins on id
	// collisions. Fails with domain.ErrCollectionNotFound or
	// domain.ErrDimensionMismatch.
	Upsert(ctx context.Context, name string, rows []domain.Row) error

	// GetByID fails with domain.ErrNotFound when absent.
	GetByID(ctx context.Context, name, id string) (domain.Row, error)

	// Scan performs a metadata-only scan, no vector search.
	Scan(ctx context.Context, name string, predicate domain.Predicate, limit int, order *domain.Order) ([]domain.Row, error)

	// Query issues a vector search; see §4.8 for ANN vs KNN semantics.
	Query(ctx context.Context, name string, qvec []float32, k int, predicate domain.Predicate, mode domain.RetrievalMode) ([]domain.Scored, error)

	// Count returns the number of rows currently in the collection.
	Count(ctx context.Context, name string) (int, error)

	// Close releases resources.
	Close() error
}

// VectorIndex is the lower-level ANN index contract a VectorStore
// implementation delegates to, one instance per collection. Grounded on the
// lineage's own HNSWlib-backed port of the same shape; internal/hnsw
// implements it in pure Go.
type VectorIndex interface {
	// Add inserts or replaces a vector under id.
	Add(ctx context.Context, id string, embedding []float32) error

	// Delete removes a vector from the index. Deleting an absent id is not
	// an error.
	Delete(ctx context.Context, id string) error

	// Search finds the k nearest neighbours to the query vector, returning
	// hits ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Close releases resources and persists the index.
	Close() error
}

// VectorHit is one ANN search result.
type VectorHit struct {
	ID       string
	Distance float64
}
