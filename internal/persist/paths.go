// SPDX-License-Identifier: MIT

// Package persist holds the shared pieces of the on-disk layout: the data
// directory resolution and the newline sentinel codec used wherever PEM
// material has to survive a line-oriented storage backend.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDir resolves the root of the persisted file tree. GAMELINK_DATA_DIR
// wins when set; otherwise the per-user config directory is used. The
// directory is created on first use.
func DataDir() (string, error) {
	dir := os.Getenv("GAMELINK_DATA_DIR")
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve user config dir: %w", err)
		}
		dir = filepath.Join(base, "GameLink")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return dir, nil
}

// SettingsPath returns the location of the general settings file.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "general.json")
}

// HostsPath returns the location of the serialized host list.
func HostsPath(dataDir string) string {
	return filepath.Join(dataDir, "hosts.ini")
}

// BoxartDir returns the root of the artwork cache tree.
func BoxartDir(dataDir string) string {
	return filepath.Join(dataDir, "boxart")
}
