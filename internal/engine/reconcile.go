package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperclay/sitesync/internal/api"
	"github.com/hyperclay/sitesync/internal/checksum"
	"github.com/hyperclay/sitesync/internal/errclass"
	"github.com/hyperclay/sitesync/internal/events"
	"github.com/hyperclay/sitesync/internal/siteid"
	"github.com/hyperclay/sitesync/internal/stats"
)

// runInitialReconcile implements §4.9.2. A fully-failed list() call aborts
// the phase (if we cannot even see the server, stop); a single problematic
// file does not (partial progress is preferred over none).
func (e *Engine) runInitialReconcile(ctx context.Context) error {
	e.bus.Publish(events.Event{Type: events.TypeSyncStart, At: time.Now(), SyncStart: &events.SyncStartPayload{ReconcileType: "initial"}})

	remote, err := e.client.List(ctx)
	if err != nil {
		return fmt.Errorf("listing server files: %w", err)
	}

	e.cache.Set(remote)

	local, err := e.scan.Scan()
	if err != nil {
		return fmt.Errorf("scanning sync root: %w", err)
	}

	seen := make(map[string]bool, len(remote))
	serverNow := e.clockOffset.Normalize(time.Now())

	for _, s := range remote {
		relPath := siteid.NewRelativePath(s.Path)
		seen[relPath.String()] = true

		l, exists := local[relPath.String()]
		if !exists {
			e.reconcileDownload(ctx, relPath, s)

			continue
		}

		switch {
		case e.clockOffset.IsFuture(l.Mtime, serverNow, e.cfg.ClockBuffer):
			e.statsStore.IncrementProtected()
		case e.clockOffset.IsLocalNewer(l.Mtime, s.ModifiedAt, e.cfg.ClockBuffer):
			e.statsStore.IncrementProtected()
		default:
			e.reconcileCompareChecksum(ctx, relPath, l.AbsolutePath, s)
		}
	}

	for relPath, l := range local {
		if seen[relPath] {
			continue
		}

		e.reconcileUpload(ctx, l.RelativePath, l.AbsolutePath)
	}

	snapshot := e.statsStore.Snapshot()
	e.bus.Publish(events.Event{
		Type: events.TypeSyncComplete, At: time.Now(),
		SyncComplete: &events.SyncCompletePayload{ReconcileType: "initial", Stats: toStatsPayload(snapshot)},
	})
	e.statsStore.MarkSynced(time.Now())

	return nil
}

func (e *Engine) reconcileCompareChecksum(ctx context.Context, relPath siteid.RelativePath, absPath string, s api.RemoteFile) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		e.recordFileError(relPath.String(), err)

		return
	}

	if checksum.Equal(checksum.Sum(data), s.Checksum) {
		e.statsStore.IncrementDownloadedSkipped()

		return
	}

	e.reconcileDownload(ctx, relPath, s)
}

func (e *Engine) reconcileDownload(ctx context.Context, relPath siteid.RelativePath, s api.RemoteFile) {
	if err := e.downloadSite(ctx, relPath, s.ModifiedAt); err != nil {
		e.recordFileError(relPath.String(), err)

		return
	}

	e.statsStore.IncrementDownloaded()
}

func (e *Engine) reconcileUpload(ctx context.Context, relPath siteid.RelativePath, absPath string) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		e.recordFileError(relPath.String(), err)

		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		e.recordFileError(relPath.String(), err)

		return
	}

	siteName := relPath.SiteName()
	if err := e.client.Upload(ctx, siteName.String(), string(data), info.ModTime()); err != nil {
		e.recordFileError(relPath.String(), err)

		return
	}

	e.statsStore.IncrementUploaded()
	e.cache.Invalidate()
}

func (e *Engine) recordFileError(path string, err error) {
	classification := errclass.Classify(err)
	e.statsStore.RecordError(stats.Entry{
		At: time.Now(), File: path, Error: err.Error(),
		Kind: string(classification.Kind), Priority: string(classification.Priority),
	})
}

// downloadSite implements §4.9.6: backup-then-overwrite, then stamp mtime
// so subsequent comparisons are stable.
func (e *Engine) downloadSite(ctx context.Context, relPath siteid.RelativePath, modifiedAt time.Time) error {
	result, err := e.client.Download(ctx, relPath.SiteName().String())
	if err != nil {
		return err
	}

	absPath := filepath.Join(e.syncRoot, filepath.FromSlash(relPath.String()))

	if existing, statErr := os.ReadFile(absPath); statErr == nil {
		if backupPath, backupErr := e.backupStore.Snapshot(relPath.SiteName(), existing); backupErr != nil {
			e.logger.Warn("engine: backup snapshot failed, proceeding with overwrite anyway", "path", relPath.String(), "error", backupErr)
		} else {
			e.bus.Publish(events.Event{
				Type: events.TypeBackupCreated, At: time.Now(),
				BackupCreated: &events.BackupCreatedPayload{Original: absPath, Backup: backupPath},
			})
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", absPath, err)
	}

	if err := os.WriteFile(absPath, []byte(result.Content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", absPath, err)
	}

	if err := os.Chtimes(absPath, modifiedAt, modifiedAt); err != nil {
		e.logger.Warn("engine: failed to stamp mtime after download", "path", absPath, "error", err)
	}

	e.bus.Publish(events.Event{
		Type: events.TypeFileSynced, At: time.Now(),
		FileSynced: &events.FileSyncedPayload{File: relPath.String(), Action: events.ActionDownload},
	})

	return nil
}

// remoteChangesCheck implements §4.9.5: the poller never initiates
// uploads, only downloads (preserving local-newer files instead).
func (e *Engine) remoteChangesCheck(ctx context.Context) {
	remote, err := e.client.List(ctx)
	if err != nil {
		e.logger.Warn("engine: poller list failed, will retry next tick", "error", err)

		return
	}

	e.cache.Set(remote)

	for _, s := range remote {
		relPath := siteid.NewRelativePath(s.Path)
		absPath := filepath.Join(e.syncRoot, filepath.FromSlash(relPath.String()))

		data, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				e.reconcileDownload(ctx, relPath, s)
			} else {
				e.recordFileError(relPath.String(), err)
			}

			continue
		}

		if checksum.Equal(checksum.Sum(data), s.Checksum) {
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil {
			e.recordFileError(relPath.String(), err)

			continue
		}

		if e.clockOffset.IsLocalNewer(info.ModTime(), s.ModifiedAt, e.cfg.ClockBuffer) {
			e.statsStore.IncrementProtected()

			continue
		}

		e.reconcileDownload(ctx, relPath, s)
	}
}

func toStatsPayload(s stats.Snapshot) events.StatsPayload {
	return events.StatsPayload{
		FilesDownloaded:        s.FilesDownloaded,
		FilesUploaded:          s.FilesUploaded,
		FilesDownloadedSkipped: s.FilesDownloadedSkipped,
		FilesUploadedSkipped:   s.FilesUploadedSkipped,
		FilesProtected:         s.FilesProtected,
		LastSync:               s.LastSync,
	}
}
