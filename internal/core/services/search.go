package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-cli/internal/logger"
)

// SearchEngine encodes a query, resolves the retrieval mode, applies
// filters, and returns top-K scored rows, per §4.8; it also answers
// conversation reconstruction requests, per §4.9.
type SearchEngine struct {
	store    driven.VectorStore
	embedder driven.EmbeddingProvider
	handle   driven.EmbedderHandle
	filters  *FilterCompiler
}

// NewSearchEngine wires a Vector Store and an already-loaded embedder
// handle into a SearchEngine.
func NewSearchEngine(store driven.VectorStore, embedder driven.EmbeddingProvider, handle driven.EmbedderHandle) *SearchEngine {
	return &SearchEngine{
		store:    store,
		embedder: embedder,
		handle:   handle,
		filters:  NewFilterCompiler(),
	}
}

// Search answers a single-collection query per the §4.8 algorithm.
func (s *SearchEngine) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResultRow, error) {
	logger.Info("search: collection=%s k=%d mode=%s", req.Collection, req.K, req.Mode)

	if req.K < 1 {
		return nil, fmt.Errorf("search: %w: k must be >= 1", domain.ErrInvalidInput)
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.RetrievalANN
	}

	predicate, geo, err := s.filters.Compile(req.Filter, s.collectionKind(ctx, req.Collection))
	if err != nil {
		logger.Warn("search: predicate compilation failed: %v", err)
		return nil, err
	}

	vecs, err := s.embedder.Encode(ctx, s.handle, []string{req.QueryText}, 1)
	if err != nil {
		return nil, fmt.Errorf("search: encode query: %w", err)
	}
	qvec := vecs[0]

	k := req.K
	if geo != nil {
		over := 2 * k
		if k+20 > over {
			over = k + 20
		}
		k = over
	}

	scored, err := s.store.Query(ctx, req.Collection, qvec, k, predicate, mode)
	if err != nil {
		return nil, fmt.Errorf("search: query collection %s: %w", req.Collection, err)
	}

	rows := make([]domain.SearchResultRow, 0, len(scored))
	for _, sc := range scored {
		if geo != nil {
			lat, lon, ok := geoOf(sc.Row.Metadata)
			if !ok || !geo.Matches(lat, lon) {
				continue
			}
		}

		score := 1 - sc.Distance
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		if req.DistanceCeiling != nil && sc.Distance > *req.DistanceCeiling {
			continue
		}

		rows = append(rows, domain.SearchResultRow{
			ID:         sc.Row.ID,
			Score:      score,
			Distance:   sc.Distance,
			Document:   sc.Row.Document,
			Metadata:   sc.Row.Metadata,
			Collection: req.Collection,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].ID < rows[j].ID
	})

	if len(rows) > req.K {
		rows = rows[:req.K]
	}
	return rows, nil
}

// MultiSearch runs Search once per request concurrently and merges results
// by descending score then ascending (collection, id), per §4.8.
func (s *SearchEngine) MultiSearch(ctx context.Context, reqs []domain.SearchRequest) ([]domain.SearchResultRow, error) {
	type outcome struct {
		rows []domain.SearchResultRow
		err  error
	}
	results := make([]outcome, len(reqs))
	done := make(chan int, len(reqs))

	for i, req := range reqs {
		go func(i int, req domain.SearchRequest) {
			rows, err := s.Search(ctx, req)
			results[i] = outcome{rows: rows, err: err}
			done <- i
		}(i, req)
	}
	for range reqs {
		<-done
	}

	var merged []domain.SearchResultRow
	for _, o := range results {
		if o.err != nil {
			return nil, o.err
		}
		merged = append(merged, o.rows...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].Collection != merged[j].Collection {
			return merged[i].Collection < merged[j].Collection
		}
		return merged[i].ID < merged[j].ID
	})

	return merged, nil
}

// Reconstruct returns a target row and its chronological neighbors within
// the same contact, per §4.9.
func (s *SearchEngine) Reconstruct(ctx context.Context, req domain.ReconstructionRequest) (domain.ReconstructionResult, error) {
	target, err := s.store.GetByID(ctx, req.Collection, req.MessageID)
	if err != nil {
		return domain.ReconstructionResult{}, err
	}

	contact, hasContact := stringMeta(target.Metadata, "contact")
	if !hasContact {
		return domain.ReconstructionResult{}, fmt.Errorf("reconstruct: %w: row has no contact", domain.ErrInvalidInput)
	}

	rows, err := s.store.Scan(ctx, req.Collection, domain.Equal{Field: "contact", Value: domain.StringValue(contact)}, 0, nil)
	if err != nil {
		return domain.ReconstructionResult{}, fmt.Errorf("reconstruct: scan contact: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ti, oki := numberMeta(rows[i].Metadata, "timestamp")
		tj, okj := numberMeta(rows[j].Metadata, "timestamp")
		switch {
		case !oki && !okj:
			return rows[i].ID < rows[j].ID
		case !oki:
			return true
		case !okj:
			return false
		case ti != tj:
			return ti < tj
		default:
			return rows[i].ID < rows[j].ID
		}
	})

	idx := -1
	for i, r := range rows {
		if r.ID == req.MessageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.ReconstructionResult{}, domain.ErrNotFound
	}

	beforeStart := idx - req.WindowBefore
	if beforeStart < 0 {
		beforeStart = 0
	}
	afterEnd := idx + 1 + req.WindowAfter
	if afterEnd > len(rows) {
		afterEnd = len(rows)
	}

	return domain.ReconstructionResult{
		Before: rows[beforeStart:idx],
		Target: rows[idx],
		After:  rows[idx+1 : afterEnd],
	}, nil
}

// collectionKind looks up a collection's kind so the Filter Compiler can
// apply kind-specific semantics (e.g. both-endpoint timestamp constraints
// for chunks). An unresolvable name compiles as if it carried no kind.
func (s *SearchEngine) collectionKind(ctx context.Context, name string) domain.CollectionKind {
	cols, err := s.store.ListCollections(ctx)
	if err != nil {
		return ""
	}
	for _, col := range cols {
		if col.Name == name {
			return col.Kind
		}
	}
	return ""
}

func geoOf(m domain.Metadata) (lat, lon float64, ok bool) {
	latVal, okLat := numberMeta(m, "gps_lat")
	lonVal, okLon := numberMeta(m, "gps_lon")
	if !okLat || !okLon {
		return 0, 0, false
	}
	return latVal, lonVal, true
}

func stringMeta(m domain.Metadata, field string) (string, bool) {
	v, ok := m[field]
	if !ok || v.Kind != domain.MetadataString {
		return "", false
	}
	return v.Str, true
}

func numberMeta(m domain.Metadata, field string) (float64, bool) {
	v, ok := m[field]
	if !ok || v.Kind != domain.MetadataNumber {
		return 0, false
	}
	return v.Num, true
}
