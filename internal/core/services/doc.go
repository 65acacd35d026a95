// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// IngestOrchestrator runs one ingestion: loaders feed documents through
// extraction, normalisation and chunking, and fixed-size batches are
// embedded and written by a bounded worker pool. A single aggregator
// goroutine owns the run report.
package services
