package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-cli/internal/hnsw"
	"github.com/custodia-labs/sercha-cli/internal/logger"
)

// Store is a SQLite-backed driven.VectorStore: rows and collection metadata
// live in SQLite, while each collection's ANN index is a pure-Go HNSW graph
// persisted alongside the database file.
type Store struct {
	db      *sql.DB
	path    string
	indexMu sync.Mutex
	indices map[string]*hnsw.Index
}

var _ driven.VectorStore = (*Store)(nil)

// NewStore creates a SQLite-backed store rooted at dataDir. If dataDir is
// empty, defaults to ~/.sercha/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "forensic.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:      db,
		path:    dbPath,
		indices: make(map[string]*hnsw.Index),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending up migrations in order, tracking applied
// versions in schema_migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// CreateCollection is idempotent on identical parameters; it fails with
// domain.ErrDimensionMismatch if a collection of the same name already
// exists with a different embedding dimension.
func (s *Store) CreateCollection(ctx context.Context, col domain.Collection) error {
	existing, err := s.getCollection(ctx, col.Name)
	if err == nil {
		if existing.EmbeddingDim != col.EmbeddingDim {
			return domain.ErrDimensionMismatch
		}
		return nil
	}
	if err != domain.ErrCollectionNotFound {
		return err
	}

	if col.CreatedAt.IsZero() {
		col.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (name, kind, embedding_dim, embedding_model_id, distance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, col.Name, string(col.Kind), col.EmbeddingDim, col.EmbeddingModelID, string(col.Distance), col.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", col.Name, err)
	}

	s.indexMu.Lock()
	s.indices[col.Name] = hnsw.New(col.EmbeddingDim, s.indexPath(col.Name))
	s.indexMu.Unlock()

	return nil
}

// DeleteCollection removes all persisted rows, the collection record, and
// its in-memory/on-disk ANN index. Deleting an absent collection is not an
// error.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM vector_rows WHERE collection_name = ?", name); err != nil {
		return fmt.Errorf("deleting rows for collection %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing collection delete: %w", err)
	}

	s.indexMu.Lock()
	delete(s.indices, name)
	s.indexMu.Unlock()
	if path := s.indexPath(name); path != "" {
		_ = os.Remove(path)
	}

	return nil
}

// ListCollections returns every known collection's metadata.
func (s *Store) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, embedding_dim, embedding_model_id, distance, created_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []domain.CollectionInfo
	for rows.Next() {
		var col domain.Collection
		var kind, distance string
		if err := rows.Scan(&col.Name, &kind, &col.EmbeddingDim, &col.EmbeddingModelID, &distance, &col.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		col.Kind = domain.CollectionKind(kind)
		col.Distance = domain.Distance(distance)
		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %w", err)
	}
	return out, nil
}

// Upsert writes rows atomically and updates the collection's ANN index.
// Last writer wins on id collisions.
func (s *Store) Upsert(ctx context.Context, name string, vrows []domain.Row) error {
	if len(vrows) == 0 {
		return nil
	}
	col, err := s.getCollection(ctx, name)
	if err != nil {
		return err
	}
	for _, r := range vrows {
		if len(r.Vector) != col.EmbeddingDim {
			return fmt.Errorf("upserting row %s into %s: %w", r.ID, name, domain.ErrDimensionMismatch)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_rows (collection_name, id, document, metadata, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection_name, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range vrows {
		metaJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for row %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, r.ID, r.Document, string(metaJSON), float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("upserting row %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}

	idx, err := s.index(ctx, name)
	if err != nil {
		logger.Warn("sqlite: could not load ANN index for %s: %v", name, err)
		return nil
	}
	for _, r := range vrows {
		if err := idx.Add(ctx, r.ID, r.Vector); err != nil {
			return fmt.Errorf("indexing row %s: %w", r.ID, err)
		}
	}
	return nil
}

// GetByID fails with domain.ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, name, id string) (domain.Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document, metadata, vector FROM vector_rows
		WHERE collection_name = ? AND id = ?
	`, name, id)
	return scanRow(row)
}

// Scan performs a metadata-only scan over a collection, no vector search.
func (s *Store) Scan(ctx context.Context, name string, predicate domain.Predicate, limit int, order *domain.Order) ([]domain.Row, error) {
	all, err := s.loadRows(ctx, name)
	if err != nil {
		return nil, err
	}

	var out []domain.Row
	for _, r := range all {
		if predicate == nil || predicate.Evaluate(r.Metadata) {
			out = append(out, r)
		}
	}

	sortRows(out, order)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Query issues a vector search. ANN mode consults the collection's HNSW
// index when the predicate matches everything; otherwise (and always in
// KNN mode) it scores predicate-matching candidates exactly, per §4.8.
func (s *Store) Query(ctx context.Context, name string, qvec []float32, k int, predicate domain.Predicate, mode domain.RetrievalMode) ([]domain.Scored, error) {
	if mode == domain.RetrievalANN && isTrivialPredicate(predicate) {
		idx, err := s.index(ctx, name)
		if err == nil {
			hits, err := idx.Search(ctx, qvec, k)
			if err != nil {
				return nil, fmt.Errorf("ann search collection %s: %w", name, err)
			}
			out := make([]domain.Scored, 0, len(hits))
			for _, h := range hits {
				r, err := s.GetByID(ctx, name, h.ID)
				if err != nil {
					continue
				}
				out = append(out, domain.Scored{Row: r, Distance: h.Distance, Collection: name})
			}
			return out, nil
		}
		logger.Debug("sqlite: falling back to exact scan for %s: %v", name, err)
	}

	rows, err := s.loadRows(ctx, name)
	if err != nil {
		return nil, err
	}

	var scored []domain.Scored
	for _, r := range rows {
		if predicate != nil && !predicate.Evaluate(r.Metadata) {
			continue
		}
		scored = append(scored, domain.Scored{Row: r, Distance: cosineDistance(qvec, r.Vector), Collection: name})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count returns the number of rows currently in the collection.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vector_rows WHERE collection_name = ?", name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", name, err)
	}
	return count, nil
}

// Close persists every open ANN index and closes the database connection.
func (s *Store) Close() error {
	s.indexMu.Lock()
	for name, idx := range s.indices {
		if err := idx.Close(); err != nil {
			logger.Warn("sqlite: failed to persist index for %s: %v", name, err)
		}
	}
	s.indexMu.Unlock()
	return s.db.Close()
}

func (s *Store) getCollection(ctx context.Context, name string) (domain.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, kind, embedding_dim, embedding_model_id, distance, created_at
		FROM collections WHERE name = ?
	`, name)

	var col domain.Collection
	var kind, distance string
	if err := row.Scan(&col.Name, &kind, &col.EmbeddingDim, &col.EmbeddingModelID, &distance, &col.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Collection{}, domain.ErrCollectionNotFound
		}
		return domain.Collection{}, fmt.Errorf("scanning collection %s: %w", name, err)
	}
	col.Kind = domain.CollectionKind(kind)
	col.Distance = domain.Distance(distance)
	return col, nil
}

func (s *Store) loadRows(ctx context.Context, name string) ([]domain.Row, error) {
	if _, err := s.getCollection(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, metadata, vector FROM vector_rows WHERE collection_name = ?
	`, name)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", name, err)
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		r, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection %s: %w", name, err)
	}
	return out, nil
}

// index lazily loads (or opens from disk) the ANN index for a collection.
func (s *Store) index(ctx context.Context, name string) (*hnsw.Index, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if idx, ok := s.indices[name]; ok {
		return idx, nil
	}

	col, err := s.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	idx, err := hnsw.Open(col.EmbeddingDim, s.indexPath(name))
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptIndex) {
			return nil, err
		}
		idx, err = s.rebuildIndex(ctx, name, col.EmbeddingDim)
		if err != nil {
			return nil, err
		}
	}
	s.indices[name] = idx
	return idx, nil
}

// rebuildIndex reconstructs a fresh ANN graph for name from its raw stored
// vectors, used when the on-disk sidecar is corrupt.
func (s *Store) rebuildIndex(ctx context.Context, name string, dim int) (*hnsw.Index, error) {
	logger.Warn("sqlite: index for %s is corrupt, rebuilding from raw vectors", name)

	rows, err := s.loadRows(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("rebuilding index for %s: %w", name, err)
	}

	vectors := make(map[string][]float32, len(rows))
	for _, r := range rows {
		vectors[r.ID] = r.Vector
	}

	idx := hnsw.New(dim, s.indexPath(name))
	if err := idx.Rebuild(ctx, vectors); err != nil {
		return nil, fmt.Errorf("rebuilding index for %s: %w", name, err)
	}
	return idx, nil
}

func (s *Store) indexPath(name string) string {
	if s.path == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(s.path), fmt.Sprintf("index_%s.gob", sanitizeFilename(name)))
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// isTrivialPredicate reports whether predicate matches every row, the
// fast path that lets Query consult the ANN index directly.
func isTrivialPredicate(predicate domain.Predicate) bool {
	if predicate == nil {
		return true
	}
	and, ok := predicate.(domain.And)
	return ok && len(and.Predicates) == 0
}

func sortRows(rows []domain.Row, order *domain.Order) {
	if order == nil || order.Field == "" || order.Field == "id" {
		sort.SliceStable(rows, func(i, j int) bool {
			if order != nil && order.Descending {
				return rows[i].ID > rows[j].ID
			}
			return rows[i].ID < rows[j].ID
		})
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		vi, oki := rows[i].Metadata[order.Field]
		vj, okj := rows[j].Metadata[order.Field]
		switch {
		case !oki && !okj:
			return rows[i].ID < rows[j].ID
		case !oki:
			return !order.Descending
		case !okj:
			return order.Descending
		}
		less := compareMetadataValue(vi, vj)
		if order.Descending {
			return !less && !vi.Equal(vj)
		}
		return less
	})
}

func compareMetadataValue(a, b domain.MetadataValue) bool {
	switch a.Kind {
	case domain.MetadataNumber:
		return a.Num < b.Num
	case domain.MetadataString:
		return a.Str < b.Str
	case domain.MetadataBool:
		return !a.Bool && b.Bool
	default:
		return false
	}
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func scanRow(row *sql.Row) (domain.Row, error) {
	var r domain.Row
	var metaJSON string
	var vectorBlob []byte
	if err := row.Scan(&r.ID, &r.Document, &metaJSON, &vectorBlob); err != nil {
		if err == sql.ErrNoRows {
			return domain.Row{}, domain.ErrNotFound
		}
		return domain.Row{}, fmt.Errorf("scanning row: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
		return domain.Row{}, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	r.Vector = bytesToFloat32Slice(vectorBlob)
	return r, nil
}

func scanRows(rows *sql.Rows) (domain.Row, error) {
	var r domain.Row
	var metaJSON string
	var vectorBlob []byte
	if err := rows.Scan(&r.ID, &r.Document, &metaJSON, &vectorBlob); err != nil {
		return domain.Row{}, fmt.Errorf("scanning row: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
		return domain.Row{}, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	r.Vector = bytesToFloat32Slice(vectorBlob)
	return r, nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
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
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
