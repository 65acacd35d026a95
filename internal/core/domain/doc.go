// Package domain defines the core entities of the ingestion pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - RawDocument: Opaque bytes from a loader
//   - SourceDocument: Extracted text of one URL or PDF
//   - NormalizedDocument: Canonical text ready for chunking
//   - Chunk: A bounded span of text, the unit of embedding
//   - StoreRecord: What the vector store persists
//   - RunReport: Per-run outcome counts and failures
//   - Settings: The complete, immutable run configuration
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
