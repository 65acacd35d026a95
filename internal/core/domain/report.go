package domain

import (
	"time"
)

// ChunkState is a stage in a chunk's lifecycle within one run.
type ChunkState string

// Chunk states. SkippedDuplicate, Persisted, EmbedFailed and PersistFailed are terminal.
const (
	ChunkLoaded           ChunkState = "loaded"
	ChunkNormalized       ChunkState = "normalized"
	ChunkChunked          ChunkState = "chunked"
	ChunkSkippedDuplicate ChunkState = "skipped_duplicate"
	ChunkEmbedded         ChunkState = "embedded"
	ChunkPersisted        ChunkState = "persisted"
	ChunkEmbedFailed      ChunkState = "embed_failed"
	ChunkPersistFailed    ChunkState = "persist_failed"
)

// IsTerminal returns true if no further transition is possible in this run.
func (s ChunkState) IsTerminal() bool {
	switch s {
	case ChunkSkippedDuplicate, ChunkPersisted, ChunkEmbedFailed, ChunkPersistFailed:
		return true
	default:
		return false
	}
}

// FailureKind classifies a recorded failure.
type FailureKind string

// Failure kinds.
const (
	FailureLoad  FailureKind = "load"
	FailureEmbed FailureKind = "embed"
	FailureStore FailureKind = "store"
)

// Failure identifies a failed document or batch so it can be re-run.
type Failure struct {
	// Kind is the failure category.
	Kind FailureKind `json:"kind"`

	// Ref is the source ID for load failures or the batch ID for batch failures.
	Ref string `json:"ref"`

	// Chunks is the number of chunks affected. Zero for load failures.
	Chunks int `json:"chunks,omitempty"`

	// Error is the error message.
	Error string `json:"error"`
}

// RunReport summarises one ingestion run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Mode       Mode      `json:"mode"`
	Collection string    `json:"collection"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	DocumentsLoaded int `json:"documents_loaded"`
	DocumentsFailed int `json:"documents_failed"`
	// DocumentsEmpty counts documents with no extractable text (scanned PDFs).
	DocumentsEmpty int `json:"documents_empty"`

	ChunksProduced      int `json:"chunks_produced"`
	ChunksSkipped       int `json:"chunks_skipped_duplicate"`
	ChunksEmbedded      int `json:"chunks_embedded"`
	ChunksPersisted     int `json:"chunks_persisted"`
	ChunksEmbedFailed   int `json:"chunks_embed_failed"`
	ChunksPersistFailed int `json:"chunks_persist_failed"`
	// ChunksAborted counts chunks never dispatched because the run was interrupted.
	ChunksAborted int `json:"chunks_aborted"`
	// ChunksPruned counts stored chunks deleted because their source changed.
	ChunksPruned int `json:"chunks_pruned"`

	// EmbedCalls counts embedding requests sent to the provider, including retries.
	EmbedCalls int `json:"embed_calls"`

	Failures    []Failure `json:"failures,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Interrupted bool      `json:"interrupted"`
}

// ChunksFailed returns the number of chunks that failed to embed or persist.
func (r *RunReport) ChunksFailed() int {
	return r.ChunksEmbedFailed + r.ChunksPersistFailed
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailuresOf returns the recorded failures of one kind.
func (r *RunReport) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// HasFailures returns true if any document or chunk failed.
func (r *RunReport) HasFailures() bool {
	return len(r.Failures) > 0
}
