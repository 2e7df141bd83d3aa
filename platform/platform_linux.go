//go:build linux

package platform

import (
	"os"
	"path/filepath"
)

// GetPlatformConfig returns the configuration defaults for Linux.
func GetPlatformConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".config", "plexscan-go")
	return &Config{
		DefaultWatchDir: "/mnt/clouddrive",
		ConfigDir:       configDir,
		DatabasePath:    filepath.Join(configDir, "servers.db"),
		DefaultExcludePatterns: []string{
			"lost+found", "*.tmp", "*.part",
		},
	}
}

// GetDefaultConfigFilePath returns the default config file path for Linux.
func GetDefaultConfigFilePath() string {
	return filepath.Join(GetPlatformConfig().ConfigDir, "config.toml")
}
