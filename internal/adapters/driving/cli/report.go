package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// renderReport prints the run report.
func renderReport(w io.Writer, r *domain.RunReport, st *styles.Styles) {
	var b strings.Builder

	title := "Ingestion report"
	if r.Interrupted {
		title += " (interrupted)"
	}
	b.WriteString(st.Title.Render(title) + "\n")

	row := func(label string, value string) {
		fmt.Fprintf(&b, "%s %s\n", st.Label.Render(label), value)
	}
	count := func(n int, style func(...string) string) string {
		if n == 0 {
			return st.Muted.Render("0")
		}
		return style(fmt.Sprintf("%d", n))
	}

	row("run", st.Muted.Render(r.RunID))
	row("mode", st.Value.Render(string(r.Mode)))
	row("collection", st.Value.Render(r.Collection))
	row("duration", st.Value.Render(r.Duration().Round(time.Millisecond).String()))
	b.WriteString("\n")

	row("documents loaded", st.Value.Render(fmt.Sprintf("%d", r.DocumentsLoaded)))
	row("documents failed", count(r.DocumentsFailed, st.Error.Render))
	row("documents empty", count(r.DocumentsEmpty, st.Warning.Render))
	b.WriteString("\n")

	row("chunks produced", st.Value.Render(fmt.Sprintf("%d", r.ChunksProduced)))
	row("skipped (duplicate)", count(r.ChunksSkipped, st.Muted.Render))
	row("embedded", count(r.ChunksEmbedded, st.Value.Render))
	row("persisted", count(r.ChunksPersisted, st.Success.Render))
	row("embed failed", count(r.ChunksEmbedFailed, st.Error.Render))
	row("persist failed", count(r.ChunksPersistFailed, st.Error.Render))
	row("aborted", count(r.ChunksAborted, st.Warning.Render))
	row("pruned (outdated)", count(r.ChunksPruned, st.Muted.Render))
	row("embedding calls", st.Value.Render(fmt.Sprintf("%d", r.EmbedCalls)))

	if docs := r.FailuresOf(domain.FailureLoad); len(docs) > 0 {
		b.WriteString("\n" + st.Error.Render("Failed documents") + "\n")
		for _, f := range docs {
			fmt.Fprintf(&b, "  %s: %s\n", f.Ref, st.Muted.Render(f.Error))
		}
	}

	batches := append(r.FailuresOf(domain.FailureEmbed), r.FailuresOf(domain.FailureStore)...)
	if len(batches) > 0 {
		b.WriteString("\n" + st.Error.Render("Failed batches") + "\n")
		for _, f := range batches {
			fmt.Fprintf(&b, "  %s [%s, %d chunks]: %s\n", f.Ref, f.Kind, f.Chunks, st.Muted.Render(f.Error))
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n" + st.Warning.Render("Warnings") + "\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	fmt.Fprint(w, b.String())
}

// writeReportJSON writes the report as indented JSON, creating parent directories.
func writeReportJSON(path string, r *domain.RunReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
