package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-cli/internal/logger"
)

// DefaultEncodeBatchSize bounds how many texts the Indexer hands to the
// embedding provider at once.
const DefaultEncodeBatchSize = 64

// stage progress anchors, per §4.6.
const (
	progressParsingStart   = 0
	progressDenoisingStart = 25
	progressChunkingStart  = 30
	progressEncodeMsgStart = 40
	progressEncodeChkStart = 65
	progressStorageStart   = 80
	progressDone           = 100
)

// Indexer orchestrates the ingestion pipeline: normalize, denoise, chunk,
// encode, store, reporting progress through a TaskRegistry as it goes.
type Indexer struct {
	store      driven.VectorStore
	embedder   driven.EmbeddingProvider
	tasks      *TaskRegistry
	noise      *NoiseFlagger
	normalizer *Normalizer
	batchSize  int
}

// NewIndexer wires the pipeline's collaborators. batchSize <= 0 uses
// DefaultEncodeBatchSize.
func NewIndexer(store driven.VectorStore, embedder driven.EmbeddingProvider, tasks *TaskRegistry, noise *NoiseFlagger, normalizer *Normalizer, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultEncodeBatchSize
	}
	return &Indexer{
		store:      store,
		embedder:   embedder,
		tasks:      tasks,
		noise:      noise,
		normalizer: normalizer,
		batchSize:  batchSize,
	}
}

// Index registers a task and launches the pipeline in the background,
// returning the task id immediately, per driving.IndexingService.
func (idx *Indexer) Index(ctx context.Context, req driving.IndexRequest) (string, error) {
	if req.BatchTag == "" {
		return "", fmt.Errorf("index: %w: batch tag required", domain.ErrInvalidInput)
	}

	taskID := idx.tasks.Create()
	go idx.run(ctx, taskID, req)
	return taskID, nil
}

func (idx *Indexer) run(ctx context.Context, taskID string, req driving.IndexRequest) {
	stats := domain.Statistics{StageDurations: make(map[domain.Stage]time.Duration)}
	logger.Section(fmt.Sprintf("index %s", req.BatchTag))

	msgCollection := collectionName(req.BatchTag, domain.CollectionKindMessages)
	chunkCollection := collectionName(req.BatchTag, domain.CollectionKindChunks)
	imgCollection := collectionName(req.BatchTag, domain.CollectionKindImages)

	if req.Reset {
		for _, name := range []string{msgCollection, chunkCollection, imgCollection} {
			if err := idx.store.DeleteCollection(ctx, name); err != nil {
				idx.tasks.Fail(taskID, fmt.Errorf("index: reset collection %s: %w", name, err))
				return
			}
		}
	}

	// Stage: parsing.
	idx.tasks.Update(taskID, progressParsingStart, domain.StageParsing, "normalizing records")
	t0 := time.Now()
	norm := idx.normalizer.Normalize(req.BatchTag, req.Records)
	stats.MessagesParsed = len(norm.Messages)
	stats.MessagesSkipped = norm.Skipped
	stats.ImagesParsed = len(norm.Images)
	stats.StageDurations[domain.StageParsing] = time.Since(t0)
	idx.tasks.Update(taskID, progressDenoisingStart, domain.StageParsing, fmt.Sprintf("parsed %d messages, %d images, skipped %d", len(norm.Messages), len(norm.Images), norm.Skipped))

	if err := checkCancelled(ctx); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageParsing), Err: err})
		return
	}

	// Stage: denoising.
	t0 = time.Now()
	idx.noise.FlagBatch(norm.Messages)
	stats.StageDurations[domain.StageDenoising] = time.Since(t0)
	idx.tasks.Update(taskID, progressChunkingStart, domain.StageDenoising, "flagged noise")

	if err := checkCancelled(ctx); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageDenoising), Err: err})
		return
	}

	// Stage: chunking.
	t0 = time.Now()
	chunker := NewChunker(WithWindowSize(orDefault(req.WindowSize, DefaultWindowSize)), WithOverlap(orDefault(req.Overlap, DefaultOverlap)))
	chunks := chunker.Chunk(norm.Messages)
	stats.ChunksBuilt = len(chunks)
	stats.StageDurations[domain.StageChunking] = time.Since(t0)
	idx.tasks.Update(taskID, progressEncodeMsgStart, domain.StageChunking, fmt.Sprintf("built %d chunks", len(chunks)))

	if err := checkCancelled(ctx); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageChunking), Err: err})
		return
	}

	handle, err := idx.embedder.Load(ctx, req.ModelID, req.Device)
	if err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageEncodingMsgs), Err: err})
		return
	}

	// Stage: encoding messages (and images, which share the stage since the
	// pipeline has no dedicated anchor for them).
	t0 = time.Now()
	msgRows, err := idx.encodeMessages(ctx, taskID, handle, norm.Messages, progressEncodeMsgStart, progressEncodeChkStart)
	if err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageEncodingMsgs), Err: err})
		return
	}
	imgRows, err := idx.encodeImages(ctx, handle, norm.Images)
	if err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageEncodingMsgs), Err: err})
		return
	}
	stats.StageDurations[domain.StageEncodingMsgs] = time.Since(t0)

	if err := checkCancelled(ctx); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageEncodingMsgs), Err: err})
		return
	}

	// Stage: encoding chunks.
	t0 = time.Now()
	chunkRows, err := idx.encodeChunks(ctx, taskID, handle, chunks, progressEncodeChkStart, progressStorageStart)
	if err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageEncodingChunks), Err: err})
		return
	}
	stats.StageDurations[domain.StageEncodingChunks] = time.Since(t0)

	if err := checkCancelled(ctx); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageEncodingChunks), Err: err})
		return
	}

	// Stage: storage.
	idx.tasks.Update(taskID, progressStorageStart, domain.StageStorage, "writing collections")
	t0 = time.Now()
	if err := idx.store.CreateCollection(ctx, domain.Collection{Name: msgCollection, Kind: domain.CollectionKindMessages, EmbeddingDim: handle.Dim(), EmbeddingModelID: handle.ModelID(), Distance: domain.DistanceCosine}); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageStorage), Err: err})
		return
	}
	if err := idx.store.CreateCollection(ctx, domain.Collection{Name: chunkCollection, Kind: domain.CollectionKindChunks, EmbeddingDim: handle.Dim(), EmbeddingModelID: handle.ModelID(), Distance: domain.DistanceCosine}); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageStorage), Err: err})
		return
	}
	if len(imgRows) > 0 {
		if err := idx.store.CreateCollection(ctx, domain.Collection{Name: imgCollection, Kind: domain.CollectionKindImages, EmbeddingDim: handle.Dim(), EmbeddingModelID: handle.ModelID(), Distance: domain.DistanceCosine}); err != nil {
			idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageStorage), Err: err})
			return
		}
	}

	if err := idx.upsertBatched(ctx, msgCollection, msgRows); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageStorage), Err: err})
		return
	}
	if err := idx.upsertBatched(ctx, chunkCollection, chunkRows); err != nil {
		idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageStorage), Err: err})
		return
	}
	if len(imgRows) > 0 {
		if err := idx.upsertBatched(ctx, imgCollection, imgRows); err != nil {
			idx.tasks.Fail(taskID, &domain.StageError{Stage: string(domain.StageStorage), Err: err})
			return
		}
	}
	stats.StageDurations[domain.StageStorage] = time.Since(t0)
	stats.VectorsStored = len(msgRows) + len(chunkRows) + len(imgRows)

	idx.tasks.Complete(taskID, stats)
	logger.Info("index %s: done, %d vectors stored", req.BatchTag, stats.VectorsStored)
}

func (idx *Indexer) encodeMessages(ctx context.Context, taskID string, handle driven.EmbedderHandle, messages []domain.Message, lo, hi int) ([]domain.Row, error) {
	rows := make([]domain.Row, 0, len(messages))
	for start := 0; start < len(messages); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = m.Text
		}
		vecs, err := idx.embedder.Encode(ctx, handle, texts, idx.batchSize)
		if err != nil {
			return nil, err
		}
		for i, m := range batch {
			rows = append(rows, domain.Row{ID: m.ID, Document: m.Text, Vector: vecs[i], Metadata: messageMetadata(m)})
		}

		idx.tasks.Update(taskID, anchorProgress(lo, hi, end, len(messages)), domain.StageEncodingMsgs, fmt.Sprintf("encoded %d/%d messages", end, len(messages)))
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (idx *Indexer) encodeImages(ctx context.Context, handle driven.EmbedderHandle, images []domain.ImageRecord) ([]domain.Row, error) {
	rows := make([]domain.Row, 0, len(images))
	for start := 0; start < len(images); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(images) {
			end = len(images)
		}
		batch := images[start:end]

		texts := make([]string, len(batch))
		for i, img := range batch {
			texts[i] = img.Description
		}
		vecs, err := idx.embedder.Encode(ctx, handle, texts, idx.batchSize)
		if err != nil {
			return nil, err
		}
		for i, img := range batch {
			rows = append(rows, domain.Row{ID: img.ID, Document: img.Description, Vector: vecs[i], Metadata: imageMetadata(img)})
		}
	}
	return rows, nil
}

func (idx *Indexer) encodeChunks(ctx context.Context, taskID string, handle driven.EmbedderHandle, chunks []domain.ContextChunk, lo, hi int) ([]domain.Row, error) {
	rows := make([]domain.Row, 0, len(chunks))
	for start := 0; start < len(chunks); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := idx.embedder.Encode(ctx, handle, texts, idx.batchSize)
		if err != nil {
			return nil, err
		}
		for i, c := range batch {
			rows = append(rows, domain.Row{ID: c.ID, Document: c.Text, Vector: vecs[i], Metadata: chunkMetadata(c)})
		}

		idx.tasks.Update(taskID, anchorProgress(lo, hi, end, len(chunks)), domain.StageEncodingChunks, fmt.Sprintf("encoded %d/%d chunks", end, len(chunks)))
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (idx *Indexer) upsertBatched(ctx context.Context, collection string, rows []domain.Row) error {
	for start := 0; start < len(rows); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := idx.store.Upsert(ctx, collection, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func messageMetadata(m domain.Message) domain.Metadata {
	meta := domain.Metadata{
		"contact":      domain.StringValue(m.Contact),
		"contact_name": domain.StringValue(m.ContactName),
		"direction":    domain.StringValue(string(m.Direction)),
		"app":          domain.StringValue(m.App),
		"is_noise":     domain.BoolValue(m.IsNoise),
		"source_tag":   domain.StringValue(m.SourceTag),
	}
	if m.Timestamp != nil {
		meta["timestamp"] = domain.NumberValue(float64(*m.Timestamp))
	}
	if m.GPSLat != nil {
		meta["gps_lat"] = domain.NumberValue(*m.GPSLat)
	}
	if m.GPSLon != nil {
		meta["gps_lon"] = domain.NumberValue(*m.GPSLon)
	}
	return meta
}

func imageMetadata(img domain.ImageRecord) domain.Metadata {
	meta := domain.Metadata{
		"filename":   domain.StringValue(img.Filename),
		"path":       domain.StringValue(img.Path),
		"source_tag": domain.StringValue(img.SourceTag),
	}
	if img.Timestamp != nil {
		meta["timestamp"] = domain.NumberValue(float64(*img.Timestamp))
	}
	if img.GPSLat != nil {
		meta["gps_lat"] = domain.NumberValue(*img.GPSLat)
	}
	if img.GPSLon != nil {
		meta["gps_lon"] = domain.NumberValue(*img.GPSLon)
	}
	return meta
}

func chunkMetadata(c domain.ContextChunk) domain.Metadata {
	meta := domain.Metadata{
		"contact":      domain.StringValue(c.Contact),
		"contact_name": domain.StringValue(c.ContactName),
		"is_noise":     domain.BoolValue(c.IsNoise),
		"member_count": domain.NumberValue(float64(c.MemberCount)),
	}
	if c.TimestampStart != nil {
		meta["timestamp"] = domain.NumberValue(float64(*c.TimestampStart))
	}
	if c.TimestampEnd != nil {
		meta["timestamp_end"] = domain.NumberValue(float64(*c.TimestampEnd))
	}
	return meta
}

// anchorProgress maps done/total within a stage into the stage's [lo, hi]
// progress range.
func anchorProgress(lo, hi, done, total int) int {
	if total <= 0 {
		return lo
	}
	span := hi - lo
	p := lo + (done*span)/total
	if p > hi {
		p = hi
	}
	return p
}

func collectionName(batchTag string, kind domain.CollectionKind) string {
	return fmt.Sprintf("%s_%s", batchTag, kind)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return domain.ErrCancelled
	default:
		return nil
	}
}
