package driving

import (
	"context"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// SearchService turns query requests into ranked, contextualized results.
type SearchService interface {
	// Search answers a single-collection query per §4.8.
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResultRow, error)

	// MultiSearch runs Search once per request and merges results by
	// descending score then ascending (collection, id), per §4.8's
	// multi-collection note.
	MultiSearch(ctx context.Context, reqs []domain.SearchRequest) ([]domain.SearchResultRow, error)

	// Reconstruct returns a target row and its chronological neighbors
	// within the same contact, per §4.9. Fails with domain.ErrNotFound if
	// the id is absent.
	Reconstruct(ctx context.Context, req domain.ReconstructionRequest) (domain.ReconstructionResult, error)
}
