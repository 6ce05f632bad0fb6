package config

import (
	"log/slog"
	"os"
)

// Environment variable names. CLI flags win over these; these win over the
// TOML file (see load.go Resolve).
const (
	envAPIKey     = "SITESYNC_API_KEY"
	envConfigPath = "SITESYNC_CONFIG"
	envSyncFolder = "SITESYNC_SYNC_FOLDER"
	envServerURL  = "SITESYNC_SERVER_URL"
	envUsername   = "SITESYNC_USERNAME"
	envLogLevel   = "SITESYNC_LOG_LEVEL"
)

// EnvOverrides holds values read from the environment. Fields are empty
// when the corresponding variable is unset.
type EnvOverrides struct {
	APIKey     string
	ConfigPath string
	SyncFolder string
	ServerURL  string
	Username   string
	LogLevel   string
}

// ReadEnvOverrides reads the recognized SITESYNC_* environment variables.
// The API key is never logged, even at debug level.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		APIKey:     os.Getenv(envAPIKey),
		ConfigPath: os.Getenv(envConfigPath),
		SyncFolder: os.Getenv(envSyncFolder),
		ServerURL:  os.Getenv(envServerURL),
		Username:   os.Getenv(envUsername),
		LogLevel:   os.Getenv(envLogLevel),
	}

	if logger != nil {
		logger.Debug("read environment overrides",
			slog.Bool("api_key_set", env.APIKey != ""),
			slog.String("config_path", env.ConfigPath),
			slog.String("sync_folder", env.SyncFolder),
			slog.String("server_url", env.ServerURL),
		)
	}

	return env
}

// CLIOverrides holds values explicitly set via command-line flags. These
// take precedence over both the TOML file and the environment.
type CLIOverrides struct {
	ConfigPath string
	SyncFolder string
	ServerURL  string
	Username   string
	APIKey     string
}
