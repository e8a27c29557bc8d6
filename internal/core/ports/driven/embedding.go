// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbedderHandle is the opaque result of loading a model, per §4.1. It is
// cheap to query and safe to share across goroutines; callers never reach
// into its internals.
type EmbedderHandle interface {
	// Dim returns the fixed output dimension of this handle's model.
	Dim() int
	// ModelID returns the model identifier this handle was loaded for.
	ModelID() string
}

// EmbeddingProvider turns batches of strings into fixed-dimension vectors.
// It is the sole place that knows about model-specific quirks (tokenizer
// limits, local vs remote inference); downstream code only sees opaque
// vectors of a known dimension.
type EmbeddingProvider interface {
	// Load materializes a handle for (modelID, device), failing with
	// domain.ErrModelUnavailable if the model cannot be reached. Load is
	// performed at most once per (modelID, device) per process; the
	// provider is responsible for caching and returning the same handle on
	// subsequent calls.
	Load(ctx context.Context, modelID, device string) (EmbedderHandle, error)

	// Encode returns one vector per input text, in the same order, batching
	// internally by batchSize. Fails with domain.ErrEncodeFailed on
	// underlying model error.
	Encode(ctx context.Context, handle EmbedderHandle, texts []string, batchSize int) ([][]float32, error)

	// Close releases resources held by every loaded handle.
	Close() error
}
