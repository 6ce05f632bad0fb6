package errclass

import (
	"log/slog"
	"sync"
	"time"
)

// Suppression tuning (§4.4): a path failing this many times within the
// cooldown window is suppressed from further automatic retries.
const (
	failureThreshold = 3
	failureCooldown  = 30 * time.Minute
)

type failureRecord struct {
	count  int
	lastAt time.Time
}

// Tracker suppresses repeatedly-failing paths in steady-state watch mode so
// one broken file cannot dominate worker attention over a long session.
// Thread-safe.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewTracker creates a failure tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		records: make(map[string]*failureRecord),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// ShouldSkip reports whether path has failed enough times within the
// cooldown window to be suppressed.
func (t *Tracker) ShouldSkip(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[path]
	if !ok {
		return false
	}

	if t.nowFunc().Sub(rec.lastAt) > failureCooldown {
		delete(t.records, path)

		return false
	}

	return rec.count >= failureThreshold
}

// RecordFailure increments the failure counter for path.
func (t *Tracker) RecordFailure(path string, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[path]
	if !ok {
		rec = &failureRecord{}
		t.records[path] = rec
	}

	if t.nowFunc().Sub(rec.lastAt) > failureCooldown {
		rec.count = 0
	}

	rec.count++
	rec.lastAt = t.nowFunc()

	if rec.count == failureThreshold {
		t.logger.Warn("path suppressed after repeated failures",
			slog.String("path", path),
			slog.Int("failures", rec.count),
			slog.String("kind", string(kind)),
			slog.Duration("cooldown", failureCooldown),
		)
	}
}

// RecordSuccess clears the failure record for path.
func (t *Tracker) RecordSuccess(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, path)
}
