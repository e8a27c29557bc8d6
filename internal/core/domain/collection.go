package domain

import "time"

// CollectionKind identifies what a Collection's rows represent.
type CollectionKind string

const (
	CollectionKindMessages CollectionKind = "messages"
	CollectionKindChunks   CollectionKind = "chunks"
	CollectionKindImages   CollectionKind = "images"
)

// Distance identifies the similarity metric a collection's index was built
// with. Only cosine is supported; the field exists so a future metric can
// be added without changing the collection's identity.
type Distance string

const DistanceCosine Distance = "cosine"

// Collection is a named, typed container of rows sharing one embedding
// model and dimension.
type Collection struct {
	Name          string
	Kind          CollectionKind
	EmbeddingDim  int
	EmbeddingModelID string
	Distance      Distance
	CreatedAt     time.Time
	RecordCount   int
}

// CollectionInfo is the read-only view returned by ListCollections.
type CollectionInfo = Collection
