package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"submind/internal/logging"
)

// watcher fires a callback once per burst of filesystem changes.
type watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
}

func newWatcher(path string, debounce time.Duration) (*watcher, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		logging.SchedulerWarn("Watcher: failed to create %s: %v (continuing anyway)", path, err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(path); err != nil {
		fs.Close()
		return nil, err
	}
	return &watcher{fs: fs, path: path, debounce: debounce}, nil
}

// run blocks until ctx is done or the watcher closes.
func (w *watcher) run(ctx context.Context, fire func()) error {
	defer w.fs.Close()
	logging.Scheduler("Watcher: watching %s", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logging.SchedulerDebug("Watcher: %s %s", event.Op, event.Name)
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.SchedulerError("Watcher error: %v", err)

		case <-timer.C:
			fire()
		}
	}
}
