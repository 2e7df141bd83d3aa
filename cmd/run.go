package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"plexscan-go/controller"
	"plexscan-go/platform"
	"plexscan-go/state"
	"plexscan-go/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the configured directory and trigger Plex scans",
	RunE:  runScanner,
}

func runScanner(cmd *cobra.Command, args []string) error {
	slog.Info("Starting Plex scanner...")

	plat, err := platform.Detect()
	if err != nil {
		return fmt.Errorf("failed to detect platform information: %w", err)
	}
	slog.Info("Platform detected", "os", plat.OS, "arch", plat.Arch)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := syncStaticServers(ctx, db, cfg.Plex.Servers); err != nil {
		return err
	}

	appState := state.New(cfg)
	ctrl := controller.New(appState, db, logger)
	if err := ctrl.Init(ctx); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Web.Enabled {
		server := web.NewServer(appState, ctrl, newPlexClient(cfg), logger)
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("web server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	slog.Info("Shutting down services...")
	if stopErr := ctrl.Stop(); stopErr != nil {
		slog.Error("Error stopping scanner", "error", stopErr)
	}
	slog.Info("Shutdown complete.")
	return err
}
