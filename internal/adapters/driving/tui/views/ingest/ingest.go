// Package ingest provides the live progress view of an ingestion run.
package ingest

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

const recentLimit = 6

// EventMsg carries a progress event into the view.
type EventMsg driving.ProgressEvent

// View shows documents and chunk batches as they complete.
type View struct {
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	bar     progress.Model
	spinner spinner.Model

	// interrupt is called once when the user asks to stop.
	interrupt func()

	documents   int
	docFailures int
	queued      int
	persisted   int
	failed      int
	skipped     int
	batches     int

	recent       []string
	showDetails  bool
	interrupting bool
	finished     bool
	width        int
}

// NewView creates a progress view. interrupt may be nil.
func NewView(s *styles.Styles, km *keymap.KeyMap, interrupt func()) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.Title

	return &View{
		styles:    s,
		keymap:    km,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:   sp,
		interrupt: interrupt,
		width:     80,
	}
}

// Sender returns a ProgressFunc that forwards events to a running program.
func Sender(p *tea.Program) driving.ProgressFunc {
	return func(e driving.ProgressEvent) {
		p.Send(EventMsg(e))
	}
}

// Init starts the spinner.
func (v *View) Init() tea.Cmd {
	return v.spinner.Tick
}

// Update handles key presses, spinner ticks and progress events.
func (v *View) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keymap.Quit):
			if !v.interrupting && v.interrupt != nil {
				v.interrupt()
			}
			v.interrupting = true
		case key.Matches(msg, v.keymap.Details):
			v.showDetails = !v.showDetails
		}
		return v, nil

	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.bar.Width = min(60, max(10, msg.Width-30))
		return v, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case EventMsg:
		v.apply(driving.ProgressEvent(msg))
		if v.finished {
			return v, tea.Quit
		}
		return v, nil
	}
	return v, nil
}

func (v *View) apply(e driving.ProgressEvent) {
	switch e.Kind {
	case driving.ProgressDocumentLoaded:
		v.documents++
		v.remember(fmt.Sprintf("loaded %s (%d chunks)", e.Ref, e.Chunks))
	case driving.ProgressDocumentFailed:
		v.docFailures++
		v.remember("failed " + e.Ref)
	case driving.ProgressChunksQueued:
		v.queued += e.Chunks
	case driving.ProgressChunksSkipped:
		v.skipped += e.Chunks
	case driving.ProgressBatchDone:
		v.batches++
		v.persisted += e.Chunks
	case driving.ProgressBatchFailed:
		v.batches++
		v.failed += e.Chunks
		v.remember("batch failed " + e.Ref)
	case driving.ProgressFinished:
		v.finished = true
	}
}

func (v *View) remember(line string) {
	v.recent = append(v.recent, line)
	if len(v.recent) > recentLimit {
		v.recent = v.recent[len(v.recent)-recentLimit:]
	}
}

// Percent returns the share of queued chunks that reached a terminal state.
func (v *View) Percent() float64 {
	if v.queued == 0 {
		return 0
	}
	return float64(v.persisted+v.failed) / float64(v.queued)
}

// Finished reports whether the run has ended.
func (v *View) Finished() bool {
	return v.finished
}

// View renders the progress view.
func (v *View) View() string {
	var b strings.Builder

	status := "Ingesting"
	if v.interrupting {
		status = "Interrupting, waiting for in-flight batches"
	}
	if v.finished {
		status = "Done"
	}
	b.WriteString(v.spinner.View() + " " + v.styles.Title.Render(status) + "\n\n")
	b.WriteString(v.bar.ViewAs(v.Percent()) + "\n\n")

	fmt.Fprintf(&b, "%s %s\n", v.styles.Label.Render("documents"),
		v.styles.Value.Render(fmt.Sprintf("%d loaded, %d failed", v.documents, v.docFailures)))
	fmt.Fprintf(&b, "%s %s\n", v.styles.Label.Render("chunks persisted"),
		v.styles.Success.Render(fmt.Sprintf("%d / %d", v.persisted, v.queued)))
	fmt.Fprintf(&b, "%s %s\n", v.styles.Label.Render("chunks skipped"),
		v.styles.Muted.Render(fmt.Sprintf("%d", v.skipped)))
	if v.failed > 0 {
		fmt.Fprintf(&b, "%s %s\n", v.styles.Label.Render("chunks failed"),
			v.styles.Error.Render(fmt.Sprintf("%d", v.failed)))
	}

	if v.showDetails && len(v.recent) > 0 {
		b.WriteString("\n")
		for _, line := range v.recent {
			b.WriteString(v.styles.Muted.Render("  "+line) + "\n")
		}
	}

	hints := make([]string, 0, 2)
	for _, kb := range v.keymap.ShortHelp() {
		h := kb.Help()
		hints = append(hints, fmt.Sprintf("%s: %s", h.Key, h.Desc))
	}
	b.WriteString("\n" + v.styles.Muted.Render(strings.Join(hints, " | ")) + "\n")
	return b.String()
}
