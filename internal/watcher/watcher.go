// Package watcher watches the local sync directory for filesystem
// changes and debounces them into settled events the worker can act
// on, so a file mid-write doesn't get synced half-finished.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Action classifies a settled filesystem event.
type Action int

const (
	ActionAdded Action = iota
	ActionModified
	ActionDeleted
	ActionRenamed
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionModified:
		return "modified"
	case ActionDeleted:
		return "deleted"
	case ActionRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is a settled, debounced filesystem change ready for the worker.
type Event struct {
	Path      string
	OldPath   string
	Action    Action
	IsDir     bool
}

// Handler is invoked once per settled event.
type Handler func(Event)

// rawAction is what the OS event source reports before debouncing.
type rawAction int

const (
	rawCreated rawAction = iota
	rawModified
	rawDeleted
	rawRenamed
)

// rawEvent is one notification from the OS event source.
type rawEvent struct {
	path    string
	oldPath string
	action  rawAction
	isDir   bool
}

// WatchID identifies a registered watch, returned by osWatcher.AddWatch.
type WatchID int

// osWatcher is the narrow, injectable seam over the real OS
// notification API (see DESIGN.md's Watcher OS-event-source note).
// A concrete implementation reports raw, undebounced events; the
// Watcher owns all debounce/settle logic on top of it.
type osWatcher interface {
	AddWatch(path string, recursive bool) (WatchID, error)
	RemoveWatch(id WatchID) error
	Events() <-chan rawEvent
	Errors() <-chan error
	Close() error
}

// Watcher debounces raw filesystem events into settled Events,
// following the Polling/Settling state machine: an event is held
// until its file's mtime has been stable for SettleTime, checked
// every PollInterval.
type Watcher struct {
	os      osWatcher
	logger  *slog.Logger

	pollInterval time.Duration
	settleTime   time.Duration

	pending map[string]*pendingEvent
}

type settleState int

const (
	statePolling settleState = iota
	stateSettling
)

type pendingEvent struct {
	action    rawAction
	oldPath   string
	isDir     bool
	lastMTime time.Time
	nextCheck time.Time
	state     settleState
}

// New builds a Watcher over the given OS event source.
func New(os osWatcher, pollInterval, settleTime time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		os:           os,
		logger:       logger,
		pollInterval: pollInterval,
		settleTime:   settleTime,
		pending:      make(map[string]*pendingEvent),
	}
}

// Watch registers a recursive watch on root and runs until ctx is
// canceled, invoking handler once per settled event.
func (w *Watcher) Watch(ctx context.Context, root string, handler Handler) error {
	if _, err := w.os.AddWatch(root, true); err != nil {
		return err
	}
	defer w.os.Close() //nolint:errcheck

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.os.Errors():
			w.logger.Error("watcher error", slog.Any("error", err))
		case ev := <-w.os.Events():
			w.handleRaw(ev, handler)
		case now := <-ticker.C:
			w.tick(now, handler)
		}
	}
}

// handleRaw applies the debounce rules to an incoming raw event:
// directory creates/deletes and renames fire immediately; file
// creates and modifications are queued for settling. A Modified for
// a path with an Added already pending is dropped, since the pending
// Added will pick up the file's final content once it settles.
func (w *Watcher) handleRaw(ev rawEvent, handler Handler) {
	path := normalizePath(ev.path)

	switch ev.action {
	case rawDeleted:
		delete(w.pending, path)
		handler(Event{Path: path, Action: ActionDeleted, IsDir: ev.isDir})
	case rawRenamed:
		delete(w.pending, path)
		handler(Event{Path: path, OldPath: normalizePath(ev.oldPath), Action: ActionRenamed, IsDir: ev.isDir})
	case rawCreated:
		if ev.isDir {
			handler(Event{Path: path, Action: ActionAdded, IsDir: true})
			return
		}

		w.enqueue(path, rawCreated, ev.isDir)
	case rawModified:
		if ev.isDir {
			return
		}

		if existing, ok := w.pending[path]; ok && existing.action == rawCreated {
			return
		}

		w.enqueue(path, rawModified, ev.isDir)
	}
}

func (w *Watcher) enqueue(path string, action rawAction, isDir bool) {
	now := time.Now()

	mtime := mtimeOf(path)
	w.pending[path] = &pendingEvent{
		action:    action,
		isDir:     isDir,
		lastMTime: mtime,
		nextCheck: now.Add(w.pollInterval),
		state:     statePolling,
	}
}

// tick advances the debounce state machine for every pending event
// whose nextCheck has arrived.
func (w *Watcher) tick(now time.Time, handler Handler) {
	for path, pe := range w.pending {
		if now.Before(pe.nextCheck) {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(w.pending, path)
			continue
		}

		mtime := mtimeOf(path)

		switch {
		case !mtime.Equal(pe.lastMTime):
			pe.lastMTime = mtime
			pe.nextCheck = now.Add(w.pollInterval)
			pe.state = statePolling
		case pe.state == statePolling:
			pe.state = stateSettling
			pe.nextCheck = now.Add(w.settleTime)
		case pe.state == stateSettling:
			if !readable(path) {
				pe.nextCheck = now.Add(w.pollInterval)
				continue
			}

			action := ActionAdded
			if pe.action == rawModified {
				action = ActionModified
			}

			delete(w.pending, path)
			handler(Event{Path: path, Action: action, IsDir: pe.isDir})
		}
	}
}

func mtimeOf(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}

	return info.ModTime()
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()

	return true
}

// normalizePath applies NFC normalization, matching the teacher's
// obsidian/vault.go handling of paths crossing the OS boundary.
func normalizePath(path string) string {
	return norm.NFC.String(path)
}
