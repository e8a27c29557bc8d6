// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - EmbeddingProvider: loads models and encodes text into vectors
//   - VectorStore: collection lifecycle, upsert, scan, and query
//   - VectorIndex: the ANN index a VectorStore delegates to per collection
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or core/services package
package driven
