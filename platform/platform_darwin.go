//go:build darwin

package platform

import (
	"os"
	"path/filepath"
)

// GetPlatformConfig returns the configuration defaults for macOS.
func GetPlatformConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".config", "plexscan-go")
	return &Config{
		DefaultWatchDir: "/Volumes/CloudDrive",
		ConfigDir:       configDir,
		DatabasePath:    filepath.Join(configDir, "servers.db"),
		DefaultExcludePatterns: []string{
			".DS_Store", ".AppleDouble", "*.tmp", "*.part",
		},
	}
}

// GetDefaultConfigFilePath returns the default config file path for macOS.
func GetDefaultConfigFilePath() string {
	return filepath.Join(GetPlatformConfig().ConfigDir, "config.toml")
}
