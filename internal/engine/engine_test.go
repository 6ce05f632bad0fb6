package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclay/sitesync/internal/api"
	"github.com/hyperclay/sitesync/internal/checksum"
	"github.com/hyperclay/sitesync/internal/config"
	"github.com/hyperclay/sitesync/internal/errclass"
	"github.com/hyperclay/sitesync/internal/events"
	"github.com/hyperclay/sitesync/internal/queue"
	"github.com/hyperclay/sitesync/internal/watcher"
)

func watcherEvent(relPath string) watcher.Event {
	return watcher.Event{Type: watcher.Add, RelativePath: relPath}
}

func sumHex(data []byte) string {
	return checksum.Sum(data)
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, string, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	syncRoot := t.TempDir()

	cfg := &config.Resolved{
		APIKey:            "test-key",
		SyncFolder:        syncRoot,
		ServerURL:         srv.URL,
		PollInterval:      30 * time.Second,
		ClockBuffer:       10 * time.Second,
		MaxRetries:        3,
		RetryDelays:       []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond},
		WatcherStable:     10 * time.Millisecond,
		CacheTTL:          30 * time.Second,
		DebounceWindow:    10 * time.Millisecond,
		MaxBackupsPerSite: 20,
		WebsocketEnabled:  false,
	}

	e := New(cfg, nil)

	return e, syncRoot, srv
}

// multiFileHandler serves a fixed site listing from /sync/files and hands
// out per-site downloads/uploads via in-memory maps, mimicking the wire
// protocol closely enough to exercise the reconcile paths end to end.
type multiFileHandler struct {
	files    []api.RemoteFile
	contents map[string]string
	uploaded map[string]string
}

func (h *multiFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/sync/files":
		json.NewEncoder(w).Encode(map[string]any{"files": h.files})
	case r.URL.Path == "/sync/status":
		json.NewEncoder(w).Encode(map[string]any{"serverTime": time.Now().UTC()})
	case len(r.URL.Path) > len("/sync/download/") && r.URL.Path[:len("/sync/download/")] == "/sync/download/":
		name := r.URL.Path[len("/sync/download/"):]
		content, ok := h.contents[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"content": content, "modifiedAt": time.Now().UTC()})
	case r.URL.Path == "/sync/upload":
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		}
		json.Unmarshal(body, &req)
		if h.uploaded != nil {
			h.uploaded[req.Filename] = req.Content
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestInitAndStopAreIdempotent(t *testing.T) {
	h := &multiFileHandler{}
	e, _, _ := newTestEngine(t, h.ServeHTTP)

	require.NoError(t, e.Init(context.Background()))
	assert.ErrorIs(t, e.Init(context.Background()), ErrAlreadyRunning)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop()) // idempotent, never errors

	assert.Equal(t, StateIdle, e.GetStatus().State)
}

func TestInitialReconcileDownloadsWhenAbsentLocally(t *testing.T) {
	h := &multiFileHandler{
		files: []api.RemoteFile{
			{Filename: "home", Path: "home.html", ModifiedAt: time.Now().UTC(), Checksum: "whatever"},
		},
		contents: map[string]string{"home": "<html>hello</html>"},
	}
	e, syncRoot, _ := newTestEngine(t, h.ServeHTTP)

	require.NoError(t, e.Init(context.Background()))
	defer e.Stop()

	data, err := os.ReadFile(filepath.Join(syncRoot, "home.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>hello</html>", string(data))

	snap := e.GetStatus().Stats
	assert.Equal(t, int64(1), snap.FilesDownloaded)
}

func TestInitialReconcilePreservesLocalNewerFileWithoutBackup(t *testing.T) {
	serverModTime := time.Now().Add(-1 * time.Hour).UTC()

	h := &multiFileHandler{
		files: []api.RemoteFile{
			{Filename: "home", Path: "home.html", ModifiedAt: serverModTime, Checksum: "server-checksum"},
		},
		contents: map[string]string{"home": "<html>server copy</html>"},
	}
	e, syncRoot, _ := newTestEngine(t, h.ServeHTTP)

	localContent := "<html>local newer copy</html>"
	require.NoError(t, os.WriteFile(filepath.Join(syncRoot, "home.html"), []byte(localContent), 0o644))

	require.NoError(t, e.Init(context.Background()))
	defer e.Stop()

	data, err := os.ReadFile(filepath.Join(syncRoot, "home.html"))
	require.NoError(t, err)
	assert.Equal(t, localContent, string(data), "local-newer file must not be overwritten")

	assert.Equal(t, int64(1), e.GetStatus().Stats.FilesProtected)
	assert.Equal(t, int64(0), e.GetStatus().Stats.FilesDownloaded)

	_, statErr := os.Stat(filepath.Join(syncRoot, config.BackupDirName, "home"))
	assert.True(t, os.IsNotExist(statErr), "no backup should be taken when the download never happens")
}

func TestInitialReconcileUploadsWhenAbsentOnServer(t *testing.T) {
	h := &multiFileHandler{uploaded: map[string]string{}}
	e, syncRoot, _ := newTestEngine(t, h.ServeHTTP)

	require.NoError(t, os.WriteFile(filepath.Join(syncRoot, "blog.html"), []byte("<html>blog</html>"), 0o644))

	require.NoError(t, e.Init(context.Background()))
	defer e.Stop()

	assert.Equal(t, "<html>blog</html>", h.uploaded["blog"])
	assert.Equal(t, int64(1), e.GetStatus().Stats.FilesUploaded)
}

func TestWatcherEventWithReservedNameNeverHitsNetwork(t *testing.T) {
	called := false
	h := func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}
	e, _, _ := newTestEngine(t, h)

	sub, unsubscribe := e.Subscribe()
	defer unsubscribe()

	e.handleWatcherEvent(watcherEvent("admin.html"))

	assert.Equal(t, 0, e.q.Len(), "a reserved name must never be enqueued")
	assert.False(t, called, "validation must reject the path before any network call")

	select {
	case ev := <-sub:
		require.Equal(t, events.TypeSyncError, ev.Type)
		assert.Equal(t, string(errclass.KindValidation), ev.SyncError.Kind)
		assert.False(t, ev.SyncError.CanRetry)
	case <-time.After(time.Second):
		t.Fatal("expected a sync-error event for the rejected path")
	}
}

func TestUploadConflictEmitsSyncConflictWithSuggestions(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync/upload" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"message": "name taken", "details": map[string]any{"suggestions": []any{"blog-2", "blog-3"}},
			})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
	e, syncRoot, _ := newTestEngine(t, h)

	require.NoError(t, os.WriteFile(filepath.Join(syncRoot, "blog.html"), []byte("<html/>"), 0o644))

	sub, unsubscribe := e.Subscribe()
	defer unsubscribe()

	outcome := e.processQueueItem(context.Background(), queue.Item{Kind: queue.KindAdd, RelativePath: "blog.html"})
	require.Error(t, outcome.Err)
	assert.False(t, outcome.Retryable, "a name conflict must never be retried")

	e.onQueueTerminalFailure("blog.html", outcome.Err)

	var gotConflict bool

	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			if ev.Type == events.TypeSyncConflict {
				gotConflict = true
				assert.ElementsMatch(t, []string{"blog-2", "blog-3"}, ev.SyncConflict.Suggestions)
			}
		case <-time.After(time.Second):
			t.Fatal("expected sync-failed and sync-conflict events")
		}
	}

	assert.True(t, gotConflict)
}

func TestValidationFailureOnUploadEmitsSyncFailedWithoutRetry(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync/upload" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
	e, syncRoot, _ := newTestEngine(t, h)

	require.NoError(t, os.WriteFile(filepath.Join(syncRoot, "blog.html"), []byte("<html/>"), 0o644))

	sub, unsubscribe := e.Subscribe()
	defer unsubscribe()

	outcome := e.processQueueItem(context.Background(), queue.Item{Kind: queue.KindAdd, RelativePath: "blog.html"})
	require.Error(t, outcome.Err)
	assert.False(t, outcome.Retryable, "a 400 is a validation failure, never retried")

	e.onQueueTerminalFailure("blog.html", outcome.Err)

	select {
	case ev := <-sub:
		require.Equal(t, events.TypeSyncFailed, ev.Type)
		assert.True(t, ev.SyncFailed.FinalFailure)
	case <-time.After(time.Second):
		t.Fatal("expected a sync-failed event")
	}
}

// TestRetryExhaustionEmitsRetryThenSyncFailed drives the queue's own
// retry-scheduled and terminal-failure callbacks directly (the way the
// queue itself invokes them after exhausting cfg.RetryDelays) against a
// classified server-error outcome, confirming the engine surfaces each
// attempt as a sync-retry event before a final sync-failed.
func TestRetryExhaustionEmitsRetryThenSyncFailed(t *testing.T) {
	e, _, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })

	sub, unsubscribe := e.Subscribe()
	defer unsubscribe()

	serverErr := &api.Error{StatusCode: http.StatusServiceUnavailable, Message: "down for maintenance"}
	outcome := e.classifyAndReturn("flaky.html", serverErr)
	require.Error(t, outcome.Err)
	assert.True(t, outcome.Retryable, "a 503 is a transient server failure and must be retried")

	for attempt := 1; attempt <= len(e.cfg.RetryDelays); attempt++ {
		e.onQueueRetryScheduled("flaky.html", attempt, e.cfg.RetryDelays[attempt-1])

		select {
		case ev := <-sub:
			require.Equal(t, events.TypeSyncRetry, ev.Type)
			assert.Equal(t, attempt, ev.SyncRetry.Attempt)
		case <-time.After(time.Second):
			t.Fatalf("expected sync-retry event for attempt %d", attempt)
		}
	}

	e.onQueueTerminalFailure("flaky.html", serverErr)

	select {
	case ev := <-sub:
		require.Equal(t, events.TypeSyncFailed, ev.Type)
		assert.True(t, ev.SyncFailed.FinalFailure)
		assert.Equal(t, len(e.cfg.RetryDelays), ev.SyncFailed.Attempts)
	case <-time.After(time.Second):
		t.Fatal("expected a sync-failed event after retries are exhausted")
	}
}

func TestProcessQueueItemSkipsUploadWhenCachedChecksumMatches(t *testing.T) {
	uploadCalls := 0
	h := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync/upload" {
			uploadCalls++
		}
		w.WriteHeader(http.StatusOK)
	}
	e, syncRoot, _ := newTestEngine(t, h)

	content := []byte("<html>cached</html>")
	require.NoError(t, os.WriteFile(filepath.Join(syncRoot, "home.html"), content, 0o644))

	e.cache.Set([]api.RemoteFile{{Filename: "home", Path: "home.html", Checksum: sumHex(content)}})

	outcome := e.processQueueItem(context.Background(), queue.Item{Kind: queue.KindChange, RelativePath: "home.html"})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 0, uploadCalls, "an identical checksum must short-circuit the upload")
	assert.Equal(t, int64(1), e.GetStatus().Stats.FilesUploadedSkipped)
}

func TestProcessQueueItemTreatsDeletedFileAsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	outcome := e.processQueueItem(context.Background(), queue.Item{Kind: queue.KindAdd, RelativePath: "gone.html"})
	assert.NoError(t, outcome.Err)
}
