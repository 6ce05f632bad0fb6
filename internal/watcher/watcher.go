// Package watcher implements the recursive file watcher (§4.6): it emits
// stabilized add/change events for *.html files under SyncRoot once a path
// has been quiescent for the stability threshold, avoiding partial reads of
// files still being written. Unlink events are emitted as soon as they are
// observed, without waiting for the stability threshold.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType distinguishes the three stabilized event kinds the watcher emits.
type EventType int

// Recognized event types.
const (
	Add EventType = iota
	Change
	Unlink
)

func (t EventType) String() string {
	switch t {
	case Add:
		return "add"
	case Change:
		return "change"
	case Unlink:
		return "unlink"
	default:
		return "unknown"
	}
}

// Event is a stabilized filesystem change relative to SyncRoot.
type Event struct {
	Type         EventType
	RelativePath string
}

// excludedDirs mirrors the scanner's exclusion set.
var excludedDirs = map[string]bool{
	"node_modules":   true,
	"sites-versions": true,
}

const (
	nosyncFileName     = ".nosync"
	safetyScanInterval = 30 * time.Second
)

// ErrNosyncGuard is surfaced when a .nosync file is found at the sync root.
// Its presence is a deliberate guard against syncing an unmounted network
// share's empty stub directory over a populated remote.
var ErrNosyncGuard = errors.New("watcher: .nosync guard file present at sync root")

// ErrSyncRootDeleted is surfaced when the sync root disappears while a
// watch is running.
var ErrSyncRootDeleted = errors.New("watcher: sync root no longer exists")

// fsWatcher abstracts fsnotify.Watcher so tests can inject a fake.
type fsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct{ w *fsnotify.Watcher }

func (f *fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f *fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

// Watcher watches syncRoot recursively for *.html changes.
type Watcher struct {
	syncRoot  string
	stability time.Duration
	logger    *slog.Logger

	newWatcher func() (fsWatcher, error)

	droppedEvents atomic.Int64

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]EventType

	fatal chan error
}

// New creates a Watcher rooted at syncRoot. stability is the quiescence
// window before a stabilized event is emitted (≈1s per the design).
func New(syncRoot string, stability time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		syncRoot:  syncRoot,
		stability: stability,
		logger:    logger,
		newWatcher: func() (fsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyWrapper{w: w}, nil
		},
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]EventType),
		fatal:   make(chan error, 1),
	}
}

// Fatal surfaces a distinguished error (ErrNosyncGuard or ErrSyncRootDeleted)
// if the sync root becomes unsafe to watch. The Engine should stop the
// session on receipt rather than let the watcher go silently quiet.
func (w *Watcher) Fatal() <-chan error {
	return w.fatal
}

func (w *Watcher) checkGuard() error {
	if _, err := os.Stat(w.syncRoot); err != nil {
		if os.IsNotExist(err) {
			return ErrSyncRootDeleted
		}

		return err
	}

	if _, err := os.Stat(filepath.Join(w.syncRoot, nosyncFileName)); err == nil {
		return ErrNosyncGuard
	}

	return nil
}

// DroppedEvents returns the count of stabilized events dropped due to
// channel backpressure. A non-zero count means the poller's periodic
// refresh is the only thing keeping the affected path(s) eventually
// consistent.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

// Watch starts watching in a background goroutine and returns at once; that
// goroutine emits stabilized events on the returned channel until ctx is
// canceled, and closes the channel when it exits.
func (w *Watcher) Watch(ctx context.Context) (<-chan Event, error) {
	if err := w.checkGuard(); err != nil {
		return nil, err
	}

	fw, err := w.newWatcher()
	if err != nil {
		return nil, errors.New("watcher: creating fsnotify watcher: " + err.Error())
	}

	if err := w.addRecursive(fw); err != nil {
		fw.Close()

		return nil, err
	}

	out := make(chan Event, 64)

	go w.loop(ctx, fw, out)

	return out, nil
}

func (w *Watcher) addRecursive(fw fsWatcher) error {
	return filepath.WalkDir(w.syncRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("watcher: walk error during setup", "path", path, "error", walkErr)

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if path != w.syncRoot && (strings.HasPrefix(name, ".") || excludedDirs[name]) {
			return filepath.SkipDir
		}

		if err := fw.Add(path); err != nil {
			w.logger.Warn("watcher: failed to add watch", "path", path, "error", err)
		}

		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, fw fsWatcher, out chan<- Event) {
	defer close(out)
	defer fw.Close()

	safetyTicker := time.NewTicker(safetyScanInterval)
	defer safetyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events():
			if !ok {
				return
			}

			w.handleRawEvent(fw, ev, out, ctx)
		case err, ok := <-fw.Errors():
			if !ok {
				return
			}

			w.logger.Warn("watcher: fsnotify error", "error", err)
		case <-safetyTicker.C:
			if err := w.checkGuard(); err != nil {
				w.logger.Error("watcher: safety scan failed, stopping", "error", err)

				select {
				case w.fatal <- err:
				default:
				}

				return
			}
		}
	}
}

func (w *Watcher) handleRawEvent(fw fsWatcher, ev fsnotify.Event, out chan<- Event, ctx context.Context) {
	rel, err := filepath.Rel(w.syncRoot, ev.Name)
	if err != nil {
		return
	}

	rel = filepath.ToSlash(rel)
	if w.isExcluded(rel) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := statDir(ev.Name); statErr == nil && info {
			if addErr := fw.Add(ev.Name); addErr != nil {
				w.logger.Warn("watcher: failed to add new directory watch", "path", ev.Name, "error", addErr)
			}

			return
		}
	}

	if !strings.HasSuffix(rel, ".html") {
		return
	}

	var kind EventType

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = Unlink
	case ev.Op&fsnotify.Create != 0:
		kind = Add
	case ev.Op&fsnotify.Write != 0:
		kind = Change
	default:
		return
	}

	w.debounce(rel, kind, out, ctx)
}

func (w *Watcher) isExcluded(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") || excludedDirs[seg] {
			return true
		}
	}

	return false
}

// debounce defers emission until the path has been quiescent for the
// stability window, collapsing bursts of Write events from editors into a
// single stabilized event. Unlink events are delivered immediately — there
// is nothing left to stabilize.
func (w *Watcher) debounce(rel string, kind EventType, out chan<- Event, ctx context.Context) {
	if kind == Unlink {
		w.emit(out, Event{Type: Unlink, RelativePath: rel}, ctx)

		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.pending[rel]; ok && existing == Add && kind == Change {
		kind = Add
	}

	w.pending[rel] = kind

	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}

	w.timers[rel] = time.AfterFunc(w.stability, func() {
		w.mu.Lock()
		finalKind := w.pending[rel]
		delete(w.pending, rel)
		delete(w.timers, rel)
		w.mu.Unlock()

		w.emit(out, Event{Type: finalKind, RelativePath: rel}, ctx)
	})
}

func (w *Watcher) emit(out chan<- Event, ev Event, ctx context.Context) {
	select {
	case out <- ev:
	case <-ctx.Done():
	default:
		w.droppedEvents.Add(1)
		w.logger.Warn("watcher: event channel full, dropping event", "path", ev.RelativePath, "type", ev.Type.String())
	}
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	return info.IsDir(), nil
}
