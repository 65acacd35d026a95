package cli

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

const watchDebounce = 2 * time.Second

// inputWatcher triggers a callback when the URL file or the PDF directory
// changes. Bursts of events within the debounce window trigger once.
type inputWatcher struct {
	w        *fsnotify.Watcher
	urlsFile  string
	pdfDir    string
	recursive bool
	debounce  time.Duration
}

// newInputWatcher watches the inputs selected by the mode that exist.
// The URL file is watched through its directory so that editors replacing
// the file are noticed.
func newInputWatcher(s domain.Settings, debounce time.Duration) (*inputWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	iw := &inputWatcher{w: w, debounce: debounce}

	if s.Mode.Includes(domain.OriginURL) && s.URLsFile != "" {
		if abs, err := filepath.Abs(s.URLsFile); err == nil {
			if err := w.Add(filepath.Dir(abs)); err == nil {
				iw.urlsFile = abs
			} else {
				logger.Warn("watch %s: %v", s.URLsFile, err)
			}
		}
	}

	if s.Mode.Includes(domain.OriginPDF) && s.PDFDir != "" {
		if abs, err := filepath.Abs(s.PDFDir); err == nil {
			if err := iw.addDir(abs, s.PDFRecursive); err == nil {
				iw.pdfDir = abs
				iw.recursive = s.PDFRecursive
			} else {
				logger.Warn("watch %s: %v", s.PDFDir, err)
			}
		}
	}
	return iw, nil
}

func (iw *inputWatcher) addDir(dir string, recursive bool) error {
	if !recursive {
		return iw.w.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return iw.w.Add(path)
		}
		return nil
	})
}

// relevant reports whether an event concerns a watched input.
func (iw *inputWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if iw.urlsFile != "" && path == iw.urlsFile {
		return true
	}
	if iw.pdfDir == "" {
		return false
	}
	rel, err := filepath.Rel(iw.pdfDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Run calls onChange after each debounced burst of relevant events until
// ctx is done. onChange runs on the calling goroutine.
func (iw *inputWatcher) Run(ctx context.Context, onChange func()) error {
	timer := time.NewTimer(iw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-iw.w.Events:
			if !ok {
				return nil
			}
			if !iw.relevant(ev) {
				continue
			}
			logger.Debug("input changed: %s", ev)
			if ev.Op&fsnotify.Create != 0 {
				iw.watchCreated(ev.Name)
			}
			timer.Reset(iw.debounce)

		case err, ok := <-iw.w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)

		case <-timer.C:
			logger.Info("Inputs changed, re-running ingestion")
			onChange()
		}
	}
}

// watchCreated starts watching a directory created under the PDF directory
// when the scan is recursive.
func (iw *inputWatcher) watchCreated(name string) {
	if iw.pdfDir == "" || !iw.recursive {
		return
	}
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := iw.addDir(name, true); err != nil {
		logger.Warn("watch %s: %v", name, err)
	}
}

// Close stops watching.
func (iw *inputWatcher) Close() error {
	return iw.w.Close()
}
