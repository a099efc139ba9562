// Package config resolves the per-user application data paths.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "tauri-drive"

// DataDirectory returns the per-user application data directory.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\tauri-drive
//   - Unix: ~/.local/share/tauri-drive (XDG data dir)
func DataDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), appDirName)
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, appDirName)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	return filepath.Join(homeDir, ".local", "share", appDirName)
}

// DatabasePath returns the path of the application database.
func DatabasePath() string {
	return filepath.Join(DataDirectory(), "app.db")
}

// KeyFilePath returns the path of the machine-local encryption key file.
func KeyFilePath() string {
	return filepath.Join(DataDirectory(), ".tauri-drive-key")
}

// EnsureDataDirectory creates the data directory if it doesn't exist.
// Uses 0700 permissions to restrict access to the owner.
func EnsureDataDirectory() error {
	return os.MkdirAll(DataDirectory(), 0700)
}
