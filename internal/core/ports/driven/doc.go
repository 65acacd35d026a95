// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Loader: Produces raw documents from URLs or a PDF directory
//   - Extractor: Turns raw bytes into source text
//   - TextNormaliser: Canonicalises text before chunking
//   - PostProcessorPipeline: Chunks and annotates normalised text
//   - VectorStore: Upserts records and answers existence queries
//   - EmbeddingService: Maps text to vectors (not needed for dry runs)
//
// # Optional Interfaces
//
// These can be nil - the pipeline degrades gracefully:
//
//   - IDLister: Bulk id listing used to warm the dedup cache
//   - DedupCache: Shared fingerprint cache (Redis)
//   - SourceArchive: Copies raw inputs to object storage (S3)
//   - RunLock: Prevents concurrent runs on one collection
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or extractor package
package driven
