// Package driving defines the interfaces core exposes to callers
// (the "driving" or "primary" ports in hexagonal architecture).
package driving

import (
	"context"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// IndexRequest describes one ingestion job.
type IndexRequest struct {
	// BatchTag names this ingestion batch; combined with a kind prefix to
	// derive collection names per §6.2.
	BatchTag string
	// Records is the already-parsed stream from an external parser; the
	// normalizer turns each into a Message or ImageRecord.
	Records []domain.RawRecord
	// Reset drops target collections before ingestion when true.
	Reset bool
	// WindowSize and Overlap parameterize the Chunker; zero means "use the
	// Chunker's built-in default" (DefaultWindowSize, DefaultOverlap). The
	// window_size and overlap values of the config file are not applied.
	WindowSize int
	Overlap    int
	// ModelID and Device select the embedding model for this run.
	ModelID string
	Device  string
}

// IndexingService launches an ingestion pipeline and returns immediately
// with a task id; progress is observed through the TaskRegistry.
type IndexingService interface {
	Index(ctx context.Context, req IndexRequest) (taskID string, err error)
}
