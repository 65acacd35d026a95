package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func sampleReport() *domain.RunReport {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.RunReport{
		RunID:               "9f1c",
		Mode:                domain.ModeBoth,
		Collection:          "rice_study",
		StartedAt:           start,
		FinishedAt:          start.Add(1500 * time.Millisecond),
		DocumentsLoaded:     4,
		DocumentsFailed:     1,
		DocumentsEmpty:      1,
		ChunksProduced:      12,
		ChunksSkipped:       3,
		ChunksEmbedded:      9,
		ChunksPersisted:     7,
		ChunksPersistFailed: 2,
		EmbedCalls:          3,
		Failures: []domain.Failure{
			{Kind: domain.FailureLoad, Ref: "./documents_pdf/broken.pdf", Error: "not a PDF"},
			{Kind: domain.FailureStore, Ref: "aaa..bbb/2", Chunks: 2, Error: "disk full"},
		},
		Warnings: []string{"scan.pdf: no extractable text"},
	}
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, sampleReport(), styles.PlainStyles())
	out := buf.String()

	assert.Contains(t, out, "Ingestion report\n")
	assert.NotContains(t, out, "(interrupted)")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "rice_study")
	assert.Contains(t, out, "Failed documents")
	assert.Contains(t, out, "./documents_pdf/broken.pdf: not a PDF")
	assert.Contains(t, out, "aaa..bbb/2 [store, 2 chunks]: disk full")
	assert.Contains(t, out, "Warnings")
	assert.Contains(t, out, "scan.pdf: no extractable text")
}

func TestRenderReport_Interrupted(t *testing.T) {
	r := sampleReport()
	r.Interrupted = true
	r.Failures = nil
	r.Warnings = nil

	var buf bytes.Buffer
	renderReport(&buf, r, styles.PlainStyles())
	out := buf.String()

	assert.Contains(t, out, "Ingestion report (interrupted)")
	assert.NotContains(t, out, "Failed batches")
	assert.NotContains(t, out, "Warnings")
}

func TestWriteReportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, writeReportJSON(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got domain.RunReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "9f1c", got.RunID)
	assert.Equal(t, 7, got.ChunksPersisted)
	assert.Len(t, got.Failures, 2)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(new(bytes.Buffer)))
}
