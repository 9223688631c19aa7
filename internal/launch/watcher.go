package launch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes Steam's config directory and kicks the coordinator
// whenever the login-state file is rewritten. Steam rewrites it right after
// a login completes, which is exactly when a pending launch becomes
// actionable. Duplicate events are harmless: redemption is idempotent.
type Watcher struct {
	dir    string
	file   string
	coord  *Coordinator
	logger *slog.Logger
}

// NewWatcher creates a Watcher for the named file inside dir.
func NewWatcher(dir, file string, coord *Coordinator) *Watcher {
	return &Watcher{
		dir:    dir,
		file:   file,
		coord:  coord,
		logger: slog.Default(),
	}
}

// Run watches until ctx is cancelled. Returns an error only when the watch
// cannot be established; the caller degrades to manual triggering then.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching for login completion", "dir", w.dir, "file", w.file)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != w.file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("login state rewritten", "op", ev.Op.String())
			w.coord.Trigger(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watch error", "error", err)
		}
	}
}
