// Package watch implements the Event Source: a recursive fsnotify watcher
// over the vault root that emits a bounded stream of event.FileEvent
// records for regular Markdown files, dropping directory events and
// anything under an excluded path.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	vevent "github.com/rduffy/vaultd/internal/event"
	"github.com/rs/zerolog"
)

// queueCapacity bounds the event channel; once it is full, new events are
// dropped with a warning rather than the queue growing unbounded.
const queueCapacity = 256

// Watcher recursively watches vaultRoot and pushes FileEvents onto a
// bounded channel, honoring a fixed exclusion list.
type Watcher struct {
	root    string
	exclude []string
	logger  zerolog.Logger

	fsw    *fsnotify.Watcher
	events chan vevent.FileEvent
	done   chan struct{}
}

// New creates a Watcher rooted at vaultRoot. excludeDirs are vault-relative
// directory names (e.g. tasks_dir, logs_dir) that are never watched and
// never produce events, per spec.md §4.1's exclusion policy.
func New(vaultRoot string, excludeDirs []string, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    vaultRoot,
		exclude: excludeDirs,
		logger:  logger,
		fsw:     fsw,
		events:  make(chan vevent.FileEvent, queueCapacity),
		done:    make(chan struct{}),
	}, nil
}

// Start registers watches on the vault root and every subdirectory, then
// begins translating fsnotify events into FileEvents in the background.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Events returns the channel FileEvents are delivered on.
func (w *Watcher) Events() <-chan vevent.FileEvent {
	return w.events
}

// Stop closes the underlying fsnotify watcher and the event channel.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsw.Close()
}

// Pop blocks for up to timeout waiting for the next FileEvent, matching
// spec.md §4.8's `event_queue.pop(timeout = poll_interval)`. The second
// return value is false on timeout or once the watcher has stopped.
func (w *Watcher) Pop(timeout time.Duration) (vevent.FileEvent, bool) {
	select {
	case ev, ok := <-w.events:
		return ev, ok
	case <-time.After(timeout):
		return vevent.FileEvent{}, false
	}
}

func (w *Watcher) addRecursive(dir string) error {
	if w.isExcluded(dir) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // a vanished/unreadable subdirectory is not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if w.isExcluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) isExcluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, ex := range w.exclude {
		ex = filepath.ToSlash(ex)
		if rel == ex || strings.HasPrefix(rel, ex+"/") {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			close(w.events)
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.events)
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.isExcluded(ev.Name) {
		return
	}

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()
	if isDir {
		// New directories are watched dynamically; directory events
		// themselves never become FileEvents (spec.md §4.1). This check
		// must run before the .md suffix filter below, since a directory
		// name never ends in .md.
		if ev.Op&fsnotify.Create != 0 {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
			}
		}
		return
	}

	if !strings.HasSuffix(ev.Name, ".md") {
		return
	}

	kind, ok := classify(ev.Op)
	if !ok {
		return
	}

	fe := vevent.FileEvent{
		Path:        ev.Name,
		Kind:        kind,
		Timestamp:   time.Now(),
		IsDirectory: false,
	}

	select {
	case w.events <- fe:
	default:
		w.logger.Warn().Str("path", ev.Name).Msg("event queue full, dropping event")
	}
}

func classify(op fsnotify.Op) (vevent.Kind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return vevent.Created, true
	case op&fsnotify.Write != 0:
		return vevent.Modified, true
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return vevent.Deleted, true
	default:
		return "", false
	}
}
