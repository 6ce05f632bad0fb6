package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// appName is the application directory name used across all platforms.
const appName = "sitesync"

// ConfigFileName is the conventional name of the TOML config file.
const ConfigFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/sitesync).
// On macOS, uses ~/Library/Application Support/sitesync per Apple guidelines.
// Other platforms fall back to ~/.config/sitesync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// linuxConfigDir returns the XDG-compliant config directory for Linux.
func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default config file path, or "" if the home
// directory cannot be determined.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, ConfigFileName)
}

// BackupDirName is the reserved subdirectory under the sync folder that
// holds versioned snapshots (§4.2). It is excluded from the Scanner and
// the Watcher.
const BackupDirName = "sites-versions"

// BackupIndexFileName is the SQLite retention index file kept inside the
// backup directory.
const BackupIndexFileName = ".index.db"

// BackupIndexPath returns the absolute path to the backup retention index
// for the given sync folder.
func BackupIndexPath(syncFolder string) string {
	return filepath.Join(syncFolder, BackupDirName, BackupIndexFileName)
}
