// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the sitesync agent.
package config

import "time"

// Config is the top-level configuration structure loaded from TOML.
// The API key is deliberately absent from this struct: it is resolved from
// the environment or an external credential store (§6, §9 of the design) and
// must never be written to or read from the config file.
type Config struct {
	Username   string `toml:"username"`
	SyncFolder string `toml:"sync_folder"`
	ServerURL  string `toml:"server_url"`

	Sync    SyncConfig    `toml:"sync"`
	Backup  BackupConfig  `toml:"backup"`
	Events  EventsConfig  `toml:"events"`
	Logging LoggingConfig `toml:"logging"`
}

// SyncConfig controls engine timing knobs (§6 of the design).
type SyncConfig struct {
	PollInterval   string   `toml:"poll_interval"`
	ClockBuffer    string   `toml:"clock_buffer"`
	MaxRetries     int      `toml:"max_retries"`
	RetryDelays    []string `toml:"retry_delays"`
	WatcherStable  string   `toml:"watcher_stability"`
	CacheTTL       string   `toml:"cache_ttl"`
	DebounceWindow string   `toml:"debounce_window"`
}

// BackupConfig controls the versioned-snapshot store.
type BackupConfig struct {
	MaxPerSite int `toml:"max_backups_per_site"`
}

// EventsConfig controls the local event-stream WebSocket bridge.
type EventsConfig struct {
	WebsocketEnabled bool `toml:"websocket_enabled"`
	WebsocketPort    int  `toml:"websocket_port"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Resolved is the fully-resolved runtime configuration: Config's string
// durations parsed into time.Duration, and the API key injected from outside
// the TOML file. This is what gets passed to engine construction.
type Resolved struct {
	APIKey     string
	Username   string
	SyncFolder string
	ServerURL  string

	PollInterval   time.Duration
	ClockBuffer    time.Duration
	MaxRetries     int
	RetryDelays    []time.Duration
	WatcherStable  time.Duration
	CacheTTL       time.Duration
	DebounceWindow time.Duration

	MaxBackupsPerSite int

	WebsocketEnabled bool
	WebsocketPort    int

	LogLevel  string
	LogFormat string
}
