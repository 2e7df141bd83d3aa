// Package cmd implements the plexscan command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"plexscan-go/config"
	"plexscan-go/database"
	"plexscan-go/logging"
	"plexscan-go/plex"
)

var (
	configPath string
	logLevel   string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "plexscan",
	Short: "Trigger Plex partial scans when files change under a watched directory",
	Long: `plexscan watches a media directory and asks a Plex Media Server to rescan
exactly the paths that changed, instead of the whole library section.

Changes are picked up from filesystem notifications when the platform supports
them and by a periodic sweep of the whole tree otherwise. Local paths are
rewritten through the configured path mappings before they are sent to Plex.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default: OS-specific)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd, serversCmd, sectionsCmd, discoverCmd, mapCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the global logger from the flags alone, so config
// loading itself is logged. loadConfig applies the file's settings after.
func setupLogging() {
	name := logLevel
	if debug {
		name = "debug"
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using info\n", err)
	}
	logging.Init(level, "text")
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Initialize(configPath)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if logLevel == "" && !debug && err == nil {
		logging.Init(level, cfg.Log.Format)
	}
	return cfg, nil
}

func openDatabase(cfg *config.AppConfig) (*database.SqliteDatabase, error) {
	db, err := database.NewSqliteDatabase(cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return db, nil
}

// syncStaticServers merges the servers declared in the config file into the
// known-servers database.
func syncStaticServers(ctx context.Context, db database.Manager, servers []config.StaticServerConfig) error {
	for _, s := range servers {
		server := &database.Server{ID: s.ID, Name: s.Name, URL: s.URL, Token: s.Token}
		if err := db.UpsertServer(ctx, server); err != nil {
			return fmt.Errorf("failed to store server %q: %w", s.ID, err)
		}
		slog.Debug("Synced static Plex server", "id", s.ID, "url", server.URL)
	}
	return nil
}

// resolveServer returns the server with id, falling back to the configured
// server_id when id is empty.
func resolveServer(ctx context.Context, cfg *config.AppConfig, db database.Manager, id string) (*database.Server, error) {
	if id == "" {
		id = cfg.Plex.ServerID
	}
	if id == "" {
		return nil, fmt.Errorf("no server given and plex.server_id is not configured")
	}
	server, err := db.GetServer(ctx, id)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, fmt.Errorf("plex server not found: %s", id)
	}
	return server, nil
}

func newPlexClient(cfg *config.AppConfig) *plex.Client {
	return plex.NewClient(cfg.HTTPTimeoutDuration(), slog.Default())
}
