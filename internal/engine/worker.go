package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperclay/sitesync/internal/api"
	"github.com/hyperclay/sitesync/internal/checksum"
	"github.com/hyperclay/sitesync/internal/errclass"
	"github.com/hyperclay/sitesync/internal/events"
	"github.com/hyperclay/sitesync/internal/queue"
	"github.com/hyperclay/sitesync/internal/siteid"
	"github.com/hyperclay/sitesync/internal/stats"
	"github.com/hyperclay/sitesync/internal/validator"
	"github.com/hyperclay/sitesync/internal/watcher"
)

// errSuppressedByTracker is returned when a path is under the failure
// tracker's cooldown window (§4.4) and an attempt is skipped without a
// network call.
var errSuppressedByTracker = errors.New("engine: path suppressed under failure cooldown")

// consumeWatcherEvents implements §4.9.3 steps 1-3: validate, then
// coalesce-enqueue add/change events. unlink is observed and logged but
// never enqueued — deletions are never propagated upward (P6).
func (e *Engine) consumeWatcherEvents(ctx context.Context, in <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}

			e.handleWatcherEvent(ev)
		}
	}
}

func (e *Engine) handleWatcherEvent(ev watcher.Event) {
	if ev.Type == watcher.Unlink {
		e.logger.Info("engine: local delete observed, not propagated", "path", ev.RelativePath)

		return
	}

	if err := validateRelativePath(ev.RelativePath); err != nil {
		e.logger.Warn("engine: dropping invalid path from watcher", "path", ev.RelativePath, "error", err)
		e.emitValidationError(ev.RelativePath, err)

		return
	}

	kind := queue.KindChange
	if ev.Type == watcher.Add {
		kind = queue.KindAdd
	}

	e.q.Enqueue(kind, ev.RelativePath)
}

// validateRelativePath applies §4.1's rules to a slash-separated relative
// path: every folder segment plus the leaf site name.
func validateRelativePath(relPath string) error {
	segments := strings.Split(relPath, "/")
	leafFile := segments[len(segments)-1]
	folders := segments[:len(segments)-1]
	leaf := siteid.NewRelativePath(leafFile).SiteName().String()

	return validator.Path(folders, leaf)
}

func (e *Engine) emitValidationError(path string, err error) {
	e.statsStore.RecordError(stats.Entry{
		At: time.Now(), File: path, Error: err.Error(),
		Kind: string(errclass.KindValidation), Priority: string(errclass.PriorityHigh),
	})
	e.bus.Publish(events.Event{
		Type: events.TypeSyncError,
		At:   time.Now(),
		SyncError: &events.SyncErrorPayload{
			File: path, Error: err.Error(), Kind: string(errclass.KindValidation),
			Priority: string(errclass.PriorityHigh), CanRetry: false,
		},
	})
}

// processQueueItem is the drain-worker loop body (§4.9.3): read, checksum,
// consult the cache short-circuit, upload, classify failures.
func (e *Engine) processQueueItem(ctx context.Context, item queue.Item) queue.Outcome {
	e.isProcessing.Store(true)
	defer e.isProcessing.Store(false)

	path := item.RelativePath

	if e.tracker.ShouldSkip(path) {
		e.logger.Debug("engine: skipping path under failure cooldown", "path", path)

		return queue.Outcome{Err: errSuppressedByTracker, Retryable: false}
	}

	relPath := siteid.NewRelativePath(path)
	absPath := filepath.Join(e.syncRoot, filepath.FromSlash(relPath.String()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted locally between enqueue and drain; nothing to do.
			return queue.Outcome{}
		}

		return e.classifyAndReturn(path, &errclass.FileAccessError{Path: path, Err: err})
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return e.classifyAndReturn(path, &errclass.FileAccessError{Path: path, Err: err})
	}

	localChecksum := checksum.Sum(data)
	siteName := relPath.SiteName()

	if cached, ok := e.cache.Lookup(siteName.String()); ok && checksum.Equal(cached.Checksum, localChecksum) {
		e.statsStore.IncrementUploadedSkipped()

		return queue.Outcome{}
	}

	if ctx.Err() != nil {
		return queue.Outcome{}
	}

	if err := e.client.Upload(ctx, siteName.String(), string(data), info.ModTime()); err != nil {
		return e.classifyAndReturn(path, err)
	}

	e.statsStore.IncrementUploaded()
	e.cache.Invalidate()
	e.bus.Publish(events.Event{
		Type: events.TypeFileSynced,
		At:   time.Now(),
		FileSynced: &events.FileSyncedPayload{File: path, Action: events.ActionUpload},
	})

	return queue.Outcome{}
}

func (e *Engine) classifyAndReturn(path string, err error) queue.Outcome {
	classification := errclass.Classify(err)

	e.classMu.Lock()
	e.lastClass[path] = classification
	e.classMu.Unlock()

	if classification.Kind == errclass.KindNameConflict {
		e.recordConflictSuggestions(path, err)
	}

	return queue.Outcome{Err: err, Retryable: classification.Retryable}
}

func (e *Engine) onQueueSuccess(path string) {
	e.tracker.RecordSuccess(path)
}

func (e *Engine) onQueueRetryScheduled(path string, attempt int, delay time.Duration) {
	// Cooldown suppression is driven by onQueueTerminalFailure only: recording
	// a failure here too would let the tracker's threshold trip mid-schedule,
	// on the very retry meant to give the item its last real attempt.
	e.bus.Publish(events.Event{
		Type: events.TypeSyncRetry,
		At:   time.Now(),
		SyncRetry: &events.SyncRetryPayload{
			File: path, Attempt: attempt, MaxAttempts: len(e.cfg.RetryDelays),
			NextRetryIn: delay, Error: e.errorTextFor(path),
		},
	})
}

func (e *Engine) onQueueTerminalFailure(path string, err error) {
	classification := errclass.Classify(err)

	e.classMu.Lock()
	e.lastClass[path] = classification
	e.classMu.Unlock()

	e.tracker.RecordFailure(path, classification.Kind)

	e.statsStore.RecordError(stats.Entry{
		At: time.Now(), File: path, Error: err.Error(),
		Kind: string(classification.Kind), Priority: string(classification.Priority),
	})

	e.bus.Publish(events.Event{
		Type: events.TypeSyncFailed,
		At:   time.Now(),
		SyncFailed: &events.SyncFailedPayload{
			File: path, Error: err.Error(), Priority: string(errclass.PriorityCritical),
			Attempts: len(e.cfg.RetryDelays), FinalFailure: true,
		},
	})

	if classification.Kind == errclass.KindNameConflict {
		suggestions := e.conflictSuggestionsFor(path)
		e.bus.Publish(events.Event{
			Type: events.TypeSyncConflict,
			At:   time.Now(),
			SyncConflict: &events.SyncConflictPayload{
				File: path, Conflict: "name_taken", Suggestions: suggestions,
				Message: "the requested site name is already taken on the server",
			},
		})
	}
}

func (e *Engine) errorTextFor(path string) string {
	e.classMu.Lock()
	defer e.classMu.Unlock()

	return string(e.lastClass[path].Kind)
}

func (e *Engine) recordConflictSuggestions(path string, err error) {
	var suggestions []string

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Details != nil {
		switch raw := apiErr.Details["suggestions"].(type) {
		case []any:
			for _, v := range raw {
				if s, ok := v.(string); ok {
					suggestions = append(suggestions, s)
				}
			}
		case []string:
			suggestions = raw
		}
	}

	e.conflictsMu.Lock()
	e.conflicts[path] = suggestions
	e.conflictsMu.Unlock()
}

func (e *Engine) conflictSuggestionsFor(path string) []string {
	e.conflictsMu.Lock()
	defer e.conflictsMu.Unlock()

	return e.conflicts[path]
}
