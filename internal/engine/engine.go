// Package engine implements the central orchestrator (§4.9): it wires the
// validator, backup store, API client, error classifier, sync queue,
// watcher, poller, event bus, and stats into the single-session lifecycle
// idle → initializing → running → stopping → idle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperclay/sitesync/internal/api"
	"github.com/hyperclay/sitesync/internal/backup"
	"github.com/hyperclay/sitesync/internal/clock"
	"github.com/hyperclay/sitesync/internal/config"
	"github.com/hyperclay/sitesync/internal/errclass"
	"github.com/hyperclay/sitesync/internal/events"
	"github.com/hyperclay/sitesync/internal/poller"
	"github.com/hyperclay/sitesync/internal/queue"
	"github.com/hyperclay/sitesync/internal/scanner"
	"github.com/hyperclay/sitesync/internal/stats"
	"github.com/hyperclay/sitesync/internal/watcher"
)

// State is a lifecycle stage (§4.9). Transitions are monotone within a
// session; re-entering "initializing" requires a full Stop first.
type State string

// Recognized lifecycle states.
const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
)

// ErrAlreadyRunning is returned by Init when the engine is not idle.
var ErrAlreadyRunning = errors.New("engine: already initialized, call Stop first")

// Status is the read accessor backing getStatus() (§4.9.8).
type Status struct {
	State         State          `json:"state"`
	Stats         stats.Snapshot `json:"stats"`
	ClockOffset   time.Duration  `json:"clockOffsetNanos"`
	QueueLength   int            `json:"queueLength"`
	Subscribers   int            `json:"subscribers"`
	DroppedEvents int64          `json:"droppedEvents"`
}

// Engine is the orchestrator. Construct with New, drive with Init/Stop.
type Engine struct {
	cfg      *config.Resolved
	syncRoot string
	logger   *slog.Logger

	client      *api.Client
	statsStore  *stats.Stats
	bus         *events.Bus
	backupStore *backup.Store
	tracker     *errclass.Tracker
	cache       *serverCache
	scan        *scanner.Scanner
	wsBridge    *events.WSBridge

	q *queue.Queue
	w *watcher.Watcher
	p *poller.Poller

	mu          sync.Mutex
	state       State
	clockOffset clock.Offset
	cancel      context.CancelFunc

	isProcessing atomic.Bool

	conflictsMu sync.Mutex
	conflicts   map[string][]string // path -> server suggestions, set right before a classified failure
	classMu     sync.Mutex
	lastClass   map[string]errclass.Classification
}

// New constructs an Engine from resolved configuration. No network or
// filesystem activity occurs until Init is called.
func New(cfg *config.Resolved, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:        cfg,
		syncRoot:   cfg.SyncFolder,
		logger:     logger,
		client:     api.NewClient(cfg.ServerURL, cfg.APIKey, http.DefaultClient, logger),
		statsStore: stats.New(),
		bus:        events.NewBus(logger),
		tracker:    errclass.NewTracker(logger),
		cache:      newServerCache(cfg.CacheTTL),
		scan:       scanner.New(cfg.SyncFolder, logger),
		state:      StateIdle,
		conflicts:  make(map[string][]string),
		lastClass:  make(map[string]errclass.Classification),
	}

	e.q = queue.New(cfg.DebounceWindow, cfg.RetryDelays, logger, e.processQueueItem)
	e.q.OnSuccess = e.onQueueSuccess
	e.q.OnRetryScheduled = e.onQueueRetryScheduled
	e.q.OnTerminalFailure = e.onQueueTerminalFailure

	e.w = watcher.New(cfg.SyncFolder, cfg.WatcherStable, logger)
	e.p = poller.New(cfg.PollInterval, e.remoteChangesCheck, e.isProcessing.Load, logger)

	if cfg.WebsocketEnabled {
		e.wsBridge = events.NewWSBridge(e.bus, e.snapshotForWS, logger)
	}

	return e
}

// Subscribe exposes the event bus to in-process consumers (the CLI, tests).
func (e *Engine) Subscribe() (<-chan events.Event, func()) {
	return e.bus.Subscribe()
}

func (e *Engine) snapshotForWS() any {
	return e.GetStatus()
}

// Init performs §4.9.1: reset state, ensure SyncRoot, sample ClockOffset,
// run the Initial Reconcile, then start the Watcher, Poller, and (if
// configured) the WebSocket bridge. Any failure before the final
// transition aborts with state reset to idle.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()

		return ErrAlreadyRunning
	}

	e.state = StateInitializing
	e.mu.Unlock()

	if err := e.init(ctx); err != nil {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()

		return err
	}

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	return nil
}

func (e *Engine) init(ctx context.Context) error {
	e.statsStore.Reset()

	if err := os.MkdirAll(e.syncRoot, 0o755); err != nil {
		return fmt.Errorf("engine: ensuring sync root: %w", err)
	}

	backupRoot := filepath.Join(e.syncRoot, config.BackupDirName)

	store, err := backup.Open(backupRoot, e.cfg.MaxBackupsPerSite, e.logger)
	if err != nil {
		return fmt.Errorf("engine: opening backup store: %w", err)
	}

	e.backupStore = store

	status, err := e.client.Status(ctx)
	if err != nil {
		return fmt.Errorf("engine: fetching server status: %w", err)
	}

	responseDone := time.Now()

	e.mu.Lock()
	e.clockOffset = clock.Sample(status.ServerTime, responseDone)
	e.mu.Unlock()

	if err := e.runInitialReconcile(ctx); err != nil {
		return fmt.Errorf("engine: initial reconcile: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.q.Start(sessionCtx)

	watchEvents, err := e.w.Watch(sessionCtx)
	if err != nil {
		cancel()

		return fmt.Errorf("engine: starting watcher: %w", err)
	}

	go e.consumeWatcherEvents(sessionCtx, watchEvents)
	go e.watchForFatalWatcherError(sessionCtx)

	e.p.Start(sessionCtx)

	if e.wsBridge != nil {
		if _, err := e.wsBridge.Start(e.cfg.WebsocketPort); err != nil {
			e.logger.Warn("engine: failed to start event websocket bridge", "error", err)
		}
	}

	return nil
}

func (e *Engine) watchForFatalWatcherError(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case err := <-e.w.Fatal():
		if err == nil {
			return
		}

		e.logger.Error("engine: watcher reported a fatal condition, stopping", "error", err)
		e.statsStore.RecordError(stats.Entry{
			At: time.Now(), Error: err.Error(), Kind: string(errclass.KindFileAccess), Priority: string(errclass.PriorityCritical),
		})

		go e.Stop()
	}
}

// Stop performs §4.9.7: safe to call from any state, never errors.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()

		return nil
	}

	e.state = StateStopping
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.p.Stop()
	e.q.Stop()
	e.cache.Invalidate()

	if e.wsBridge != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		e.wsBridge.Stop(ctx)
		done()
	}

	e.mu.Lock()
	e.state = StateIdle
	e.cancel = nil
	e.mu.Unlock()

	return nil
}

// GetStatus returns the read accessor backing the CLI status command and
// the WebSocket bridge's initial frame (§4.9.8).
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	state := e.state
	offset := e.clockOffset
	e.mu.Unlock()

	return Status{
		State:         state,
		Stats:         e.statsStore.Snapshot(),
		ClockOffset:   time.Duration(offset),
		QueueLength:   e.q.Len(),
		Subscribers:   e.bus.SubscriberCount(),
		DroppedEvents: e.w.DroppedEvents(),
	}
}
