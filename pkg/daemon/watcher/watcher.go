// Package watcher watches a library root for top-level entries appearing
// or disappearing and triggers debounced rescans.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/shelf/pkg/daemon/broadcaster"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 5 * time.Second

// Watcher watches the direct children of a library root.
type Watcher struct {
	watcher     *fsnotify.Watcher
	debounce    time.Duration
	broadcaster *broadcaster.Broadcaster
	log         *logging.Logger

	mu     sync.RWMutex
	root   string
	closed bool
}

// New creates a new Watcher. A debounce of zero uses DefaultDebounce.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  fsw,
		debounce: debounce,
		log:      logging.Get("watcher"),
	}, nil
}

// SetBroadcaster sets the broadcaster that receives entry events.
func (w *Watcher) SetBroadcaster(b *broadcaster.Broadcaster) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadcaster = b
}

// Watch starts watching root. Only the root directory itself is watched;
// changes inside game directories are not reported. Watching a new root
// replaces the previous one.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("library root is not a directory: " + absRoot)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if w.root == absRoot {
		return nil
	}
	if w.root != "" {
		_ = w.watcher.Remove(w.root)
	}

	if err := w.watcher.Add(absRoot); err != nil {
		w.log.Warn("failed to add watch", "path", absRoot, "error", err)
		return err
	}
	w.root = absRoot
	w.log.Info("watching library root", "path", absRoot)
	return nil
}

// Unwatch stops watching the current root.
func (w *Watcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.root == "" {
		return
	}
	_ = w.watcher.Remove(w.root)
	w.root = ""
}

// Root returns the watched root, or "" when nothing is watched.
func (w *Watcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}

// Watching reports whether a root is being watched.
func (w *Watcher) Watching() bool {
	return w.Root() != ""
}

// Run starts the event loop. It blocks until the context is cancelled or
// the watcher is closed. onChange is called once a burst of entry changes
// has been quiet for the debounce period.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context)) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handleEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)

		case <-fire:
			fire = nil
			if onChange != nil {
				onChange(ctx)
			}
		}
	}
}

// handleEvent reports whether event changes the set of top-level entries.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	w.mu.RLock()
	root, b := w.root, w.broadcaster
	w.mu.RUnlock()

	if root == "" || filepath.Dir(event.Name) != root {
		return false
	}

	var kind broadcaster.EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = broadcaster.EventEntryAdded
	case event.Op&fsnotify.Remove != 0:
		kind = broadcaster.EventEntryRemoved
	case event.Op&fsnotify.Rename != 0:
		// Rename is treated as a remove - the new name will trigger a create
		kind = broadcaster.EventEntryRemoved
	default:
		return false
	}

	w.log.Debug("library entry changed", "path", event.Name, "op", event.Op.String())
	if b != nil {
		b.Notify(&broadcaster.Event{Type: kind, Path: event.Name})
	}
	return true
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.root = ""
	return w.watcher.Close()
}
