package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func watchSettings(t *testing.T) domain.Settings {
	t.Helper()
	dir := t.TempDir()
	s := domain.DefaultSettings()
	s.URLsFile = filepath.Join(dir, "urls.txt")
	s.PDFDir = filepath.Join(dir, "pdfs")
	require.NoError(t, os.WriteFile(s.URLsFile, []byte("https://example.com/\n"), 0644))
	require.NoError(t, os.Mkdir(s.PDFDir, 0755))
	return s
}

func TestInputWatcher_Relevant(t *testing.T) {
	s := watchSettings(t)
	w, err := newInputWatcher(s, time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	dir := filepath.Dir(s.URLsFile)
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"url file written", fsnotify.Event{Name: s.URLsFile, Op: fsnotify.Write}, true},
		{"sibling file", fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write}, false},
		{"pdf created", fsnotify.Event{Name: filepath.Join(s.PDFDir, "a.pdf"), Op: fsnotify.Create}, true},
		{"chmod only", fsnotify.Event{Name: s.URLsFile, Op: fsnotify.Chmod}, false},
		{"outside pdf dir", fsnotify.Event{Name: filepath.Join(dir, "pdfs-old", "a.pdf"), Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.ev))
		})
	}
}

func TestInputWatcher_ModeSelectsInputs(t *testing.T) {
	s := watchSettings(t)
	s.Mode = domain.ModeURLs
	w, err := newInputWatcher(s, time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	assert.NotEmpty(t, w.urlsFile)
	assert.Empty(t, w.pdfDir)
}

func TestInputWatcher_DebouncesBursts(t *testing.T) {
	s := watchSettings(t)
	w, err := newInputWatcher(s, 100*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() { changes <- struct{}{} })
	}()

	for i := 0; i < 3; i++ {
		name := filepath.Join(s.PDFDir, "paper"+string(rune('a'+i))+".pdf")
		require.NoError(t, os.WriteFile(name, []byte("%PDF-1.4"), 0644))
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case <-changes:
		t.Fatal("burst reported more than once")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestInputWatcher_WatchCreated(t *testing.T) {
	tests := []struct {
		name      string
		recursive bool
		want      bool
	}{
		{"recursive watches new directory", true, true},
		{"flat scan ignores new directory", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := watchSettings(t)
			s.PDFRecursive = tt.recursive
			w, err := newInputWatcher(s, time.Millisecond)
			require.NoError(t, err)
			defer w.Close()

			sub := filepath.Join(s.PDFDir, "2024")
			nested := filepath.Join(sub, "q1")
			require.NoError(t, os.MkdirAll(nested, 0755))

			w.watchCreated(sub)

			list := w.w.WatchList()
			abs, err := filepath.Abs(nested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, slices.Contains(list, abs))
		})
	}
}

func TestInputWatcher_WatchCreatedIgnoresFilesAndMissingPaths(t *testing.T) {
	s := watchSettings(t)
	s.PDFRecursive = true
	w, err := newInputWatcher(s, time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	before := len(w.w.WatchList())
	file := filepath.Join(s.PDFDir, "a.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF-1.4"), 0644))

	w.watchCreated(file)
	w.watchCreated(filepath.Join(s.PDFDir, "gone"))

	assert.Len(t, w.w.WatchList(), before)
}
