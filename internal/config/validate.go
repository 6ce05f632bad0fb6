package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Validation errors for the resolved configuration.
var (
	ErrMissingAPIKey     = errors.New("config: api key is required (set SITESYNC_API_KEY or --api-key)")
	ErrMissingSyncFolder = errors.New("config: sync folder is required")
	ErrMissingServerURL  = errors.New("config: server url is required")
	ErrInvalidServerURL  = errors.New("config: server url must be an absolute http(s) url")
	ErrSyncFolderIsFile  = errors.New("config: sync folder exists and is not a directory")
)

// Validate checks a Resolved config for internal consistency and reachable
// preconditions (sync folder usable, server URL well-formed). It does not
// perform network calls — reachability of the server is the engine's concern
// at startup, not config's.
func Validate(r *Resolved) error {
	if r.APIKey == "" {
		return ErrMissingAPIKey
	}

	if r.SyncFolder == "" {
		return ErrMissingSyncFolder
	}

	if r.ServerURL == "" {
		return ErrMissingServerURL
	}

	u, err := url.Parse(r.ServerURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, r.ServerURL)
	}

	if info, err := os.Stat(r.SyncFolder); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSyncFolderIsFile, r.SyncFolder)
	}

	if r.PollInterval <= 0 {
		return fmt.Errorf("config key poll_interval: must be positive, got %s", r.PollInterval)
	}

	if r.ClockBuffer <= 0 {
		return fmt.Errorf("config key clock_buffer: must be positive, got %s", r.ClockBuffer)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("config key max_retries: must be non-negative, got %d", r.MaxRetries)
	}

	if r.MaxBackupsPerSite <= 0 {
		return fmt.Errorf("config key max_backups_per_site: must be positive, got %d", r.MaxBackupsPerSite)
	}

	return nil
}
