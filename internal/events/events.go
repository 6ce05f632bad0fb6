// Package events implements the typed event fan-out surface (§6): every
// state change in the engine is emitted here once, then delivered both as
// a typed Go value to in-process subscribers and as a JSON frame to any
// connected local WebSocket listener.
package events

import "time"

// Type names the event variants on the wire and on the in-process bus.
type Type string

// Recognized event types.
const (
	TypeSyncStart      Type = "sync-start"
	TypeSyncComplete   Type = "sync-complete"
	TypeSyncStats      Type = "sync-stats"
	TypeFileSynced     Type = "file-synced"
	TypeSyncError      Type = "sync-error"
	TypeSyncRetry      Type = "sync-retry"
	TypeSyncFailed     Type = "sync-failed"
	TypeSyncConflict   Type = "sync-conflict"
	TypeBackupCreated  Type = "backup-created"
)

// Action distinguishes which direction a file-synced event traveled.
type Action string

// Recognized actions.
const (
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
)

// Event is the envelope delivered to subscribers. Exactly one of the
// pointer payload fields is populated, matching Type.
type Event struct {
	Type Type      `json:"type"`
	At   time.Time `json:"at"`

	SyncStart    *SyncStartPayload    `json:"syncStart,omitempty"`
	SyncComplete *SyncCompletePayload `json:"syncComplete,omitempty"`
	SyncStats    *StatsPayload        `json:"syncStats,omitempty"`
	FileSynced   *FileSyncedPayload   `json:"fileSynced,omitempty"`
	SyncError    *SyncErrorPayload    `json:"syncError,omitempty"`
	SyncRetry    *SyncRetryPayload    `json:"syncRetry,omitempty"`
	SyncFailed   *SyncFailedPayload   `json:"syncFailed,omitempty"`
	SyncConflict *SyncConflictPayload `json:"syncConflict,omitempty"`
	BackupCreated *BackupCreatedPayload `json:"backupCreated,omitempty"`
}

// SyncStartPayload accompanies TypeSyncStart.
type SyncStartPayload struct {
	ReconcileType string `json:"type"`
}

// SyncCompletePayload accompanies TypeSyncComplete.
type SyncCompletePayload struct {
	ReconcileType string        `json:"type"`
	Stats         StatsPayload `json:"stats"`
}

// StatsPayload is a point-in-time snapshot of the engine's counters.
type StatsPayload struct {
	FilesDownloaded        int64      `json:"filesDownloaded"`
	FilesUploaded          int64      `json:"filesUploaded"`
	FilesDownloadedSkipped int64      `json:"filesDownloadedSkipped"`
	FilesUploadedSkipped   int64      `json:"filesUploadedSkipped"`
	FilesProtected         int64      `json:"filesProtected"`
	LastSync               *time.Time `json:"lastSync,omitempty"`
}

// FileSyncedPayload accompanies TypeFileSynced.
type FileSyncedPayload struct {
	File   string `json:"file"`
	Action Action `json:"action"`
}

// SyncErrorPayload accompanies TypeSyncError.
type SyncErrorPayload struct {
	File     string `json:"file,omitempty"`
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Priority string `json:"priority"`
	Action   Action `json:"action,omitempty"`
	CanRetry bool   `json:"canRetry"`
}

// SyncRetryPayload accompanies TypeSyncRetry.
type SyncRetryPayload struct {
	File        string        `json:"file"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	NextRetryIn time.Duration `json:"nextRetryIn"`
	Error       string        `json:"error"`
}

// SyncFailedPayload accompanies TypeSyncFailed.
type SyncFailedPayload struct {
	File         string `json:"file"`
	Error        string `json:"error"`
	Priority     string `json:"priority"`
	Attempts     int    `json:"attempts"`
	FinalFailure bool   `json:"finalFailure"`
}

// SyncConflictPayload accompanies TypeSyncConflict.
type SyncConflictPayload struct {
	File        string   `json:"file"`
	Conflict    string   `json:"conflict"`
	Suggestions []string `json:"suggestions"`
	Message     string   `json:"message"`
}

// BackupCreatedPayload accompanies TypeBackupCreated.
type BackupCreatedPayload struct {
	Original string `json:"original"`
	Backup   string `json:"backup"`
}
