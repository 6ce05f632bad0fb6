package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file into a Config seeded with
// defaults, so that unset keys keep their default values. A missing file is
// not an error — DefaultConfig() is returned as-is, since api key/sync
// folder/server URL can arrive entirely via environment or CLI flags.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no config file found, using defaults", slog.String("path", path))

			return cfg, nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	logger.Debug("config file parsed successfully", slog.String("path", path))

	return cfg, nil
}

// Resolve merges a parsed Config with environment and CLI overrides (CLI
// wins over env, env wins over file) and parses the duration/size strings
// into a runtime-ready Resolved struct. The API key must come from env or
// CLI — it is intentionally never present in the TOML file (§9).
func Resolve(cfg *Config, env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	r := &Resolved{
		APIKey:     firstNonEmpty(cli.APIKey, env.APIKey),
		Username:   firstNonEmpty(cli.Username, env.Username, cfg.Username),
		SyncFolder: firstNonEmpty(cli.SyncFolder, env.SyncFolder, cfg.SyncFolder),
		ServerURL:  firstNonEmpty(cli.ServerURL, env.ServerURL, cfg.ServerURL),

		MaxRetries:        cfg.Sync.MaxRetries,
		MaxBackupsPerSite: cfg.Backup.MaxPerSite,
		WebsocketEnabled:  cfg.Events.WebsocketEnabled,
		WebsocketPort:     cfg.Events.WebsocketPort,
		LogLevel:          firstNonEmpty(env.LogLevel, cfg.Logging.LogLevel),
		LogFormat:         cfg.Logging.LogFormat,
	}

	var err error

	if r.PollInterval, err = parseDuration("poll_interval", cfg.Sync.PollInterval); err != nil {
		return nil, err
	}

	if r.ClockBuffer, err = parseDuration("clock_buffer", cfg.Sync.ClockBuffer); err != nil {
		return nil, err
	}

	if r.WatcherStable, err = parseDuration("watcher_stability", cfg.Sync.WatcherStable); err != nil {
		return nil, err
	}

	if r.CacheTTL, err = parseDuration("cache_ttl", cfg.Sync.CacheTTL); err != nil {
		return nil, err
	}

	if r.DebounceWindow, err = parseDuration("debounce_window", cfg.Sync.DebounceWindow); err != nil {
		return nil, err
	}

	r.RetryDelays = make([]time.Duration, 0, len(cfg.Sync.RetryDelays))

	for _, s := range cfg.Sync.RetryDelays {
		d, derr := parseDuration("retry_delays", s)
		if derr != nil {
			return nil, derr
		}

		r.RetryDelays = append(r.RetryDelays, d)
	}

	if err := Validate(r); err != nil {
		return nil, err
	}

	logger.Debug("config resolved",
		slog.String("sync_folder", r.SyncFolder),
		slog.String("server_url", r.ServerURL),
		slog.Duration("poll_interval", r.PollInterval),
	)

	return r, nil
}

// firstNonEmpty returns the first non-empty string among vals.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}

// parseDuration parses a duration string, wrapping the error with the
// offending config key so misconfiguration is easy to locate.
func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config key %s: invalid duration %q: %w", key, s, err)
	}

	return d, nil
}
