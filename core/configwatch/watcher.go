// Package configwatch reports changes to a settings file.
package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type fileState struct {
	modTime time.Time
	size    int64
}

func (s fileState) missing() bool { return s.modTime.IsZero() }

// Watcher watches one file. Its directory is watched rather than the file
// itself so that editors which save by rename are still seen.
type Watcher struct {
	path     string
	name     string
	debounce time.Duration
	logger   *slog.Logger

	fw   *fsnotify.Watcher
	last fileState
}

// New starts watching path. The file's current state is the baseline, so Run
// only reports changes made after New returns. The file does not need to
// exist yet, but its directory does. Bursts of events closer together than
// debounce are reported once.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		path:     path,
		name:     filepath.Base(path),
		debounce: debounce,
		logger:   logger,
		fw:       fw,
		last:     stat(path),
	}, nil
}

// Run blocks until ctx is cancelled, calling onChange after each settled
// change. A failed onChange is logged and not retried until the file changes
// again. Run closes the watcher on return.
func (w *Watcher) Run(ctx context.Context, onChange func(path string) error) {
	defer w.fw.Close()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle = time.After(w.debounce)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "path", w.path, "error", err)
		case <-settle:
			settle = nil
			w.check(onChange)
		}
	}
}

func (w *Watcher) check(onChange func(path string) error) {
	current := stat(w.path)

	// Missing files are skipped; a rename-on-save shows up as a later Create.
	if current.missing() || current == w.last {
		return
	}
	w.last = current

	w.logger.Info("settings file changed", "path", w.path)
	if err := onChange(w.path); err != nil {
		w.logger.Warn("reload failed", "path", w.path, "error", err)
	}
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{modTime: info.ModTime(), size: info.Size()}
}
