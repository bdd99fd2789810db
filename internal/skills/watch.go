package skills

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher debounces filesystem change events under a skills directory
// into Manager.Reload calls.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	log     *slog.Logger
	done    chan struct{}
}

// WatchDir starts watching root (non-recursively; skills each live in
// their own immediate subdirectory of root) and reloads manager, debounced
// by debounce, on any event fsnotify reports for root's own entries, such
// as a skill subdirectory being created, removed or renamed. Changes inside
// a skill subdirectory, such as an edit to its SKILL.md, are not watched
// and do not trigger a reload.
func WatchDir(root string, manager *Manager, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{manager: manager, watcher: fw, log: log, done: make(chan struct{})}
	go w.loop(debounce)
	return w, nil
}

func (w *Watcher) loop(debounce time.Duration) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C
			w.log.Debug("skills directory change observed", "op", ev.Op.String(), "path", ev.Name)
		case <-pending:
			pending = nil
			if _, err := w.manager.Reload("fsnotify"); err != nil {
				w.log.Warn("skills reload failed", "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("skills watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
