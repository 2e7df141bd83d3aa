//go:build windows

package platform

import (
	"os"
	"path/filepath"
)

// GetPlatformConfig returns the configuration defaults for Windows.
func GetPlatformConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, "AppData", "Roaming", "plexscan-go")
	return &Config{
		DefaultWatchDir: `C:\CloudDrive`,
		ConfigDir:       configDir,
		DatabasePath:    filepath.Join(configDir, "servers.db"),
		DefaultExcludePatterns: []string{
			"Thumbs.db", "desktop.ini", "*.tmp", "*.part",
		},
	}
}

// GetDefaultConfigFilePath returns the default config file path for Windows.
func GetDefaultConfigFilePath() string {
	return filepath.Join(GetPlatformConfig().ConfigDir, "config.toml")
}
