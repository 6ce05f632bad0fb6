package config

// Default values for configuration options (data-model §6). These are the
// baseline layer of the override chain: TOML file values win over these,
// and environment variables win over the TOML file (see env.go).
const (
	defaultPollInterval   = "30s"
	defaultClockBuffer    = "10s"
	defaultMaxRetries     = 3
	defaultWatcherStable  = "1s"
	defaultCacheTTL       = "30s"
	defaultDebounceWindow = "300ms"

	defaultMaxBackupsPerSite = 20

	defaultWebsocketEnabled = false
	defaultWebsocketPort    = 0

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// defaultRetryDelays is the per-attempt backoff schedule (§4.5): 5s, 15s, 60s.
var defaultRetryDelays = []string{"5s", "15s", "60s"}

// DefaultConfig returns a Config populated with all default values. Used both
// as the starting point for TOML decoding (so unset fields retain defaults)
// and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			PollInterval:   defaultPollInterval,
			ClockBuffer:    defaultClockBuffer,
			MaxRetries:     defaultMaxRetries,
			RetryDelays:    append([]string(nil), defaultRetryDelays...),
			WatcherStable:  defaultWatcherStable,
			CacheTTL:       defaultCacheTTL,
			DebounceWindow: defaultDebounceWindow,
		},
		Backup: BackupConfig{
			MaxPerSite: defaultMaxBackupsPerSite,
		},
		Events: EventsConfig{
			WebsocketEnabled: defaultWebsocketEnabled,
			WebsocketPort:    defaultWebsocketPort,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
