package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"plexscan-go/logging"
	"plexscan-go/platform"
)

const (
	DefaultScanInterval   = 300
	DefaultHTTPTimeout    = 30
	DefaultStopTimeout    = 5
	DefaultWatchQueueSize = 1024
	DefaultWebListen      = "127.0.0.1:8099"
)

// AppConfig is the main application configuration structure.
type AppConfig struct {
	Log      LogConfig      `toml:"log"`
	Watch    WatchConfig    `toml:"watch"`
	Plex     PlexConfig     `toml:"plex"`
	Database DatabaseConfig `toml:"database"`
	Web      WebConfig      `toml:"web"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// WatchConfig holds change detection settings.
type WatchConfig struct {
	Directory       string   `toml:"directory"`
	ScanInterval    int      `toml:"scan_interval"` // seconds
	WatchQueueSize  int      `toml:"watch_queue_size"`
	StopTimeout     int      `toml:"stop_timeout"` // seconds
	ExcludePatterns []string `toml:"exclude_patterns,omitempty"`
}

// PlexConfig holds the scan target and path rewriting settings.
type PlexConfig struct {
	ServerID          string               `toml:"server_id"`
	SectionID         string               `toml:"section_id"`
	HTTPTimeout       int                  `toml:"http_timeout"` // seconds
	MatchPathSegments bool                 `toml:"match_path_segments"`
	PathMappings      []PathMappingConfig  `toml:"path_mappings,omitempty"`
	Servers           []StaticServerConfig `toml:"servers,omitempty"`
}

// PathMappingConfig rewrites LocalPath prefixes into PlexPath prefixes.
type PathMappingConfig struct {
	LocalPath string `toml:"local_path"`
	PlexPath  string `toml:"plex_path"`
}

// StaticServerConfig declares a Plex server inline. These are merged into
// the known-servers database at startup.
type StaticServerConfig struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path *string `toml:"path"`
}

// WebConfig holds the status API settings.
type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Initialize loads the configuration from a file or creates a default one.
func Initialize(configPath string) (*AppConfig, error) {
	if configPath == "" {
		configPath = platform.GetDefaultConfigFilePath()
		slog.Info("Using default config path", "path", configPath)
	} else {
		slog.Info("Using provided config path", "path", configPath)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Configuration file not found, creating a default one.", "path", configPath)
			cfg = Default()
			if err := cfg.SaveToFile(configPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default creates a default configuration based on the current platform.
func Default() *AppConfig {
	plat := platform.GetPlatformConfig()
	return &AppConfig{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Directory:       plat.DefaultWatchDir,
			ScanInterval:    DefaultScanInterval,
			WatchQueueSize:  DefaultWatchQueueSize,
			StopTimeout:     DefaultStopTimeout,
			ExcludePatterns: plat.DefaultExcludePatterns,
		},
		Plex: PlexConfig{
			HTTPTimeout: DefaultHTTPTimeout,
		},
		Database: DatabaseConfig{
			Path: &plat.DatabasePath,
		},
		Web: WebConfig{
			Enabled: true,
			Listen:  DefaultWebListen,
		},
	}
}

// LoadFromFile loads configuration from a TOML file. Omitted numeric
// settings fall back to their defaults.
func LoadFromFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes a TOML document.
func Parse(data string) (*AppConfig, error) {
	var cfg AppConfig
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Watch.ScanInterval == 0 {
		c.Watch.ScanInterval = DefaultScanInterval
	}
	if c.Watch.WatchQueueSize == 0 {
		c.Watch.WatchQueueSize = DefaultWatchQueueSize
	}
	if c.Watch.StopTimeout == 0 {
		c.Watch.StopTimeout = DefaultStopTimeout
	}
	if c.Plex.HTTPTimeout == 0 {
		c.Plex.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Web.Listen == "" {
		c.Web.Listen = DefaultWebListen
	}
}

// SaveToFile saves the configuration to a TOML file.
func (c *AppConfig) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// Validate checks the configuration for common errors. Missing scan targets
// and a missing watch directory are only warned about: the dispatcher
// reports them per call and the controller degrades to sweep-only mode.
func (c *AppConfig) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Watch.ScanInterval < 0 {
		return fmt.Errorf("scan_interval must be positive")
	}
	if c.Watch.WatchQueueSize < 0 {
		return fmt.Errorf("watch_queue_size must be positive")
	}
	if c.Watch.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout must be positive")
	}
	if c.Plex.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	for i, s := range c.Plex.Servers {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("plex.servers[%d]: id and url are required", i)
		}
	}

	if strings.TrimSpace(c.Watch.Directory) == "" {
		slog.Warn("no watch directory configured")
	} else if _, err := os.Stat(c.Watch.Directory); os.IsNotExist(err) {
		slog.Warn("watch directory does not exist", "path", c.Watch.Directory)
	}
	if c.Plex.ServerID == "" || c.Plex.SectionID == "" {
		slog.Warn("plex server_id or section_id not configured, scans will fail until set")
	}
	for i, m := range c.Plex.PathMappings {
		if m.LocalPath == "" || m.PlexPath == "" {
			slog.Warn("ignoring incomplete path mapping", "index", i, "local_path", m.LocalPath, "plex_path", m.PlexPath)
		}
	}
	return nil
}

// ScanIntervalDuration returns the sweep interval.
func (c *AppConfig) ScanIntervalDuration() time.Duration {
	return time.Duration(c.Watch.ScanInterval) * time.Second
}

// HTTPTimeoutDuration returns the per-request bound for Plex calls.
func (c *AppConfig) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.Plex.HTTPTimeout) * time.Second
}

// StopTimeoutDuration returns how long shutdown waits for background work.
func (c *AppConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(c.Watch.StopTimeout) * time.Second
}

// GetDatabasePath returns the configured database path or the platform default.
func (c *AppConfig) GetDatabasePath() string {
	if c.Database.Path != nil && *c.Database.Path != "" {
		return *c.Database.Path
	}
	return platform.GetPlatformConfig().DatabasePath
}
