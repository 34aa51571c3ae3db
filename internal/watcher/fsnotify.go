package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyWatcher is the concrete osWatcher backed by
// github.com/fsnotify/fsnotify, grounded on the teacher's
// obsidian/watcher.go: fsnotify does not recurse on its own, so every
// subdirectory under the watched root is registered individually on
// start, and newly created directories are added as they appear.
type fsnotifyWatcher struct {
	fsw    *fsnotify.Watcher
	events chan rawEvent
	errors chan error

	mu   sync.Mutex
	next WatchID
}

// newFsnotifyWatcher constructs an unstarted fsnotifyWatcher.
func newFsnotifyWatcher() (*fsnotifyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &fsnotifyWatcher{
		fsw:    fsw,
		events: make(chan rawEvent, 64),
		errors: make(chan error, 8),
	}

	go w.pump()

	return w, nil
}

func (w *fsnotifyWatcher) AddWatch(path string, recursive bool) (WatchID, error) {
	if err := w.fsw.Add(path); err != nil {
		return 0, fmt.Errorf("watching %s: %w", path, err)
	}

	if recursive {
		err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}

			if p == path || !d.IsDir() {
				return nil
			}

			return w.fsw.Add(p)
		})
		if err != nil {
			return 0, fmt.Errorf("watching %s recursively: %w", path, err)
		}
	}

	w.mu.Lock()
	w.next++
	id := w.next
	w.mu.Unlock()

	return id, nil
}

func (w *fsnotifyWatcher) RemoveWatch(id WatchID) error {
	return nil
}

func (w *fsnotifyWatcher) Events() <-chan rawEvent {
	return w.events
}

func (w *fsnotifyWatcher) Errors() <-chan error {
	return w.errors
}

func (w *fsnotifyWatcher) Close() error {
	return w.fsw.Close()
}

// pump translates fsnotify's Op bitmask into our raw event vocabulary
// and registers new subdirectories as they're created, so a directory
// created after Watch started is still monitored.
func (w *fsnotifyWatcher) pump() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.dispatch(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *fsnotifyWatcher) dispatch(ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	switch {
	case ev.Has(fsnotify.Create):
		if isDir {
			_ = w.fsw.Add(ev.Name)
		}

		w.send(rawEvent{path: ev.Name, action: rawCreated, isDir: isDir})
	case ev.Has(fsnotify.Write):
		w.send(rawEvent{path: ev.Name, action: rawModified, isDir: isDir})
	case ev.Has(fsnotify.Remove):
		w.send(rawEvent{path: ev.Name, action: rawDeleted, isDir: isDir})
	case ev.Has(fsnotify.Rename):
		// fsnotify reports a rename as a Remove-like event on the old
		// name with no new name attached; the corresponding Create on
		// the new name arrives separately and is handled above. Treat
		// the bare Rename as a delete of the old path.
		w.send(rawEvent{path: ev.Name, action: rawDeleted, isDir: isDir})
	}
}

func (w *fsnotifyWatcher) send(ev rawEvent) {
	select {
	case w.events <- ev:
	default:
	}
}

// NewFsnotifyWatcher exposes the concrete implementation for callers
// wiring up a real Watcher outside tests.
func NewFsnotifyWatcher() (osWatcherCloser, error) {
	return newFsnotifyWatcher()
}

// osWatcherCloser is osWatcher, exported under an alias so
// cmd/syncd can hold one without reaching into this package's
// unexported interface.
type osWatcherCloser = osWatcher
