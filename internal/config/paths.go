package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Application directory name used across all platforms.
const appName = "widgetctl"

const (
	configFileName = "config.toml"
	tokenFileName  = "session.json"
	dbFileName     = "session.db"
)

// baseDir names an XDG base directory and its conventional location under
// the home directory.
type baseDir struct {
	env      string
	fallback []string
}

var (
	configBase = baseDir{env: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataBase   = baseDir{env: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// DefaultConfigDir returns the directory holding config.toml:
// $XDG_CONFIG_HOME/widgetctl on Linux, ~/Library/Application Support/widgetctl
// on macOS.
func DefaultConfigDir() string {
	return appDir(configBase)
}

// DefaultDataDir returns the directory holding the session file and
// database. On macOS it is the same as the config directory.
func DefaultDataDir() string {
	return appDir(dataBase)
}

// appDir resolves b for the current platform. Empty when the home directory
// is unknown.
func appDir(b baseDir) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "linux":
		return xdgDir(b.env, home, b.fallback...)
	default:
		return filepath.Join(append(append([]string{home}, b.fallback...), appName)...)
	}
}

// xdgDir returns $env/widgetctl, or home/fallback.../widgetctl when env is unset.
func xdgDir(env, home string, fallback ...string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// DefaultConfigPath returns the config file used when neither
// WIDGETCTL_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
