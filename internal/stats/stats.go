// Package stats implements the engine's counters, a bounded recent-errors
// ring, and the lastSync timestamp backing getStatus() (§4.9.8, §7).
package stats

import (
	"sync"
	"time"
)

// recentErrorsCapacity bounds the notification-inbox ring (§7).
const recentErrorsCapacity = 50

// Entry is one recorded error, retained for the UI's notification inbox.
type Entry struct {
	At       time.Time `json:"at"`
	File     string    `json:"file"`
	Error    string    `json:"error"`
	Kind     string    `json:"kind"`
	Priority string    `json:"priority"`
}

// Snapshot is a point-in-time copy of the counters and recent-errors ring.
type Snapshot struct {
	FilesDownloaded        int64      `json:"filesDownloaded"`
	FilesUploaded          int64      `json:"filesUploaded"`
	FilesDownloadedSkipped int64      `json:"filesDownloadedSkipped"`
	FilesUploadedSkipped   int64      `json:"filesUploadedSkipped"`
	FilesProtected         int64      `json:"filesProtected"`
	LastSync               *time.Time `json:"lastSync,omitempty"`
	RecentErrors           []Entry    `json:"recentErrors,omitempty"`
}

// Stats is mutated only by the drain worker, the initial-reconcile
// routine, and the poller callback — never concurrently with each other,
// per the engine's single-writer discipline (§5).
type Stats struct {
	mu sync.Mutex

	filesDownloaded        int64
	filesUploaded          int64
	filesDownloadedSkipped int64
	filesUploadedSkipped   int64
	filesProtected         int64
	lastSync               *time.Time

	recentErrors []Entry
}

// New creates an empty Stats.
func New() *Stats {
	return &Stats{}
}

// Reset clears every counter and the recent-errors ring (engine init, §4.9.1).
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filesDownloaded = 0
	s.filesUploaded = 0
	s.filesDownloadedSkipped = 0
	s.filesUploadedSkipped = 0
	s.filesProtected = 0
	s.lastSync = nil
	s.recentErrors = nil
}

func (s *Stats) IncrementDownloaded() {
	s.mu.Lock()
	s.filesDownloaded++
	s.mu.Unlock()
}

func (s *Stats) IncrementUploaded() {
	s.mu.Lock()
	s.filesUploaded++
	s.mu.Unlock()
}

func (s *Stats) IncrementDownloadedSkipped() {
	s.mu.Lock()
	s.filesDownloadedSkipped++
	s.mu.Unlock()
}

func (s *Stats) IncrementUploadedSkipped() {
	s.mu.Lock()
	s.filesUploadedSkipped++
	s.mu.Unlock()
}

func (s *Stats) IncrementProtected() {
	s.mu.Lock()
	s.filesProtected++
	s.mu.Unlock()
}

// MarkSynced stamps lastSync to t (called when a reconcile phase completes).
func (s *Stats) MarkSynced(t time.Time) {
	s.mu.Lock()
	s.lastSync = &t
	s.mu.Unlock()
}

// RecordError appends to the bounded recent-errors ring, evicting the
// oldest entry once at capacity.
func (s *Stats) RecordError(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recentErrors = append(s.recentErrors, e)
	if len(s.recentErrors) > recentErrorsCapacity {
		s.recentErrors = s.recentErrors[len(s.recentErrors)-recentErrorsCapacity:]
	}
}

// Snapshot returns a copy of the current counters and recent-errors ring.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]Entry, len(s.recentErrors))
	copy(errs, s.recentErrors)

	var lastSync *time.Time
	if s.lastSync != nil {
		t := *s.lastSync
		lastSync = &t
	}

	return Snapshot{
		FilesDownloaded:        s.filesDownloaded,
		FilesUploaded:          s.filesUploaded,
		FilesDownloadedSkipped: s.filesDownloadedSkipped,
		FilesUploadedSkipped:   s.filesUploadedSkipped,
		FilesProtected:         s.filesProtected,
		LastSync:               lastSync,
		RecentErrors:           errs,
	}
}
