// Package poller implements the periodic remote-changes driver (§4.7): it
// calls the engine's remote-changes check on a fixed interval, guaranteeing
// firings never overlap themselves and skipping a tick if the queue worker
// is currently draining (to avoid self-races with watcher-driven uploads).
package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Check is the engine's remote-changes check (§4.9.5). It is never called
// concurrently with itself.
type Check func(ctx context.Context)

// IsDraining reports whether the queue worker currently has an item
// in flight; when true, a poll firing is skipped for this tick.
type IsDraining func() bool

// Poller drives Check on a fixed interval.
type Poller struct {
	interval   time.Duration
	check      Check
	isDraining IsDraining
	logger     *slog.Logger

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Poller. isDraining may be nil, in which case every firing
// is attempted.
func New(interval time.Duration, check Check, isDraining IsDraining, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	if isDraining == nil {
		isDraining = func() bool { return false }
	}

	return &Poller{
		interval:   interval,
		check:      check,
		isDraining: isDraining,
		logger:     logger,
	}
}

// Start launches the poll loop. It is a no-op if already running.
func (p *Poller) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.fire(ctx)
		}
	}
}

// fire runs one check, guaranteed not to overlap a still-running prior
// firing because the select loop above only advances to the next tick
// after fire returns.
func (p *Poller) fire(ctx context.Context) {
	if p.isDraining() {
		p.logger.Debug("poller: skipping tick, queue worker is draining")

		return
	}

	p.check(ctx)
}

// Stop halts the poll loop and waits for any in-flight firing to return.
// Safe to call even if Start was never called or Stop already ran.
func (p *Poller) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	close(p.stopCh)
	<-p.doneCh
}
