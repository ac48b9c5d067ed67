// Package watch turns filesystem notifications on a user's mailboxes into
// coalesced "something changed" signals for the download daemon.
package watch

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"dtb-go/internal/dtb"
)

// Watcher signals changes under a set of directories. fsnotify does not
// recurse, so directories created inside a watched directory (a new friend's
// mailbox) are added as they appear.
type Watcher struct {
	watcher *fsnotify.Watcher
	updates chan struct{}
	logger  dtb.Logger
}

// New watches every directory in dirs.
func New(dirs []string, logger dtb.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// Release the handles of the directories added so far.
			if err := watcher.Close(); err != nil {
				logger.Warn("failed to close file watcher", "error", err)
			}
			return nil, fmt.Errorf("watch %q: %w", dir, err)
		}
	}

	w := &Watcher{watcher: watcher, logger: logger}
	w.updates = combineUpdates(w.follow(watcher.Events))
	go w.logErrors()
	return w, nil
}

// Updates returns a channel that receives a value after one or more changes.
// Bursts of events collapse into a single pending signal.
func (w *Watcher) Updates() <-chan struct{} {
	return w.updates
}

// Close stops watching. Updates is closed once pending events drain.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// follow adds newly created directories to the watch list and forwards
// every event.
func (w *Watcher) follow(events <-chan fsnotify.Event) <-chan fsnotify.Event {
	out := make(chan fsnotify.Event)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(ev.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			w.logger.Debug("filesystem event", "path", ev.Name, "op", ev.Op.String())
			out <- ev
		}
	}()
	return out
}

func (w *Watcher) logErrors() {
	for err := range w.watcher.Errors {
		w.logger.Warn("file watcher error", "error", err)
	}
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}
