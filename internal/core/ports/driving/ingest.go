package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// IngestService runs the ingestion pipeline.
type IngestService interface {
	// Run ingests every input selected by the configured mode and returns the
	// run report. An error is returned only for configuration problems; all
	// per-document and per-batch failures are recorded in the report.
	Run(ctx context.Context) (*domain.RunReport, error)
}

// ProgressKind identifies a progress event.
type ProgressKind string

// Progress event kinds.
const (
	ProgressDocumentLoaded ProgressKind = "document_loaded"
	ProgressDocumentFailed ProgressKind = "document_failed"
	ProgressChunksQueued   ProgressKind = "chunks_queued"
	ProgressChunksSkipped  ProgressKind = "chunks_skipped"
	ProgressBatchDone      ProgressKind = "batch_done"
	ProgressBatchFailed    ProgressKind = "batch_failed"
	ProgressFinished       ProgressKind = "finished"
)

// ProgressEvent reports incremental progress of a run.
type ProgressEvent struct {
	Kind ProgressKind

	// Ref is the source ID or batch ID the event is about.
	Ref string

	// Chunks is the number of chunks the event covers.
	Chunks int
}

// ProgressFunc receives progress events. It is called from a single
// goroutine and must not block for long.
type ProgressFunc func(ProgressEvent)
