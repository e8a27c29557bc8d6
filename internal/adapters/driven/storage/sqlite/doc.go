// Package sqlite provides a SQLite-based implementation of the
// driven.VectorStore port.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. Row data (id, document,
// metadata, vector) lives in the vector_rows table, one row per collection
// member; collection metadata lives in the collections table. Each
// collection's approximate nearest-neighbor index is a separate internal/hnsw
// graph persisted alongside the database file.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files, applied in order and tracked in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha/data/forensic.db, with one
// index_<collection>.gob sidecar file per collection alongside it.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode, plus a mutex guarding the in-memory ANN
// index cache.
package sqlite
