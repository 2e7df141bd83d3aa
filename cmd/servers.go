package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"plexscan-go/database"
)

var (
	serverName  string
	serverToken string
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage known Plex servers",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known Plex servers",
	Args:  cobra.NoArgs,
	RunE: withDatabase(func(ctx context.Context, db *database.SqliteDatabase, args []string) error {
		servers, err := db.ListServers(ctx)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Println("No Plex servers configured.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tURL\tTOKEN")
		for _, s := range servers {
			token := "no"
			if s.Token != "" {
				token = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.URL, token)
		}
		return tw.Flush()
	}),
}

var serversAddCmd = &cobra.Command{
	Use:   "add <id> <url>",
	Short: "Add or update a Plex server",
	Args:  cobra.ExactArgs(2),
	RunE: withDatabase(func(ctx context.Context, db *database.SqliteDatabase, args []string) error {
		server := &database.Server{ID: args[0], URL: args[1], Name: serverName, Token: serverToken}
		if existing, err := db.GetServer(ctx, server.ID); err == nil && existing != nil {
			server.CreatedAt = existing.CreatedAt
		}
		if err := db.UpsertServer(ctx, server); err != nil {
			return err
		}
		fmt.Printf("Saved Plex server %s (%s)\n", server.ID, server.URL)
		return nil
	}),
}

var serversRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a Plex server",
	Args:  cobra.ExactArgs(1),
	RunE: withDatabase(func(ctx context.Context, db *database.SqliteDatabase, args []string) error {
		removed, err := db.RemoveServer(ctx, args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("plex server not found: %s", args[0])
		}
		fmt.Printf("Removed Plex server %s\n", args[0])
		return nil
	}),
}

var serversTestCmd = &cobra.Command{
	Use:   "test [id]",
	Short: "Check that a Plex server is reachable with its token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := syncStaticServers(ctx, db, cfg.Plex.Servers); err != nil {
			return err
		}
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		server, err := resolveServer(ctx, cfg, db, id)
		if err != nil {
			return err
		}

		start := time.Now()
		identity, err := newPlexClient(cfg).Identity(ctx, server.URL, server.Token)
		if err != nil {
			return fmt.Errorf("plex server %s unreachable: %w", server.ID, err)
		}
		fmt.Printf("OK %s (%s) machine=%s version=%s in %s\n",
			server.ID, server.URL, identity.MachineIdentifier, identity.Version, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	serversAddCmd.Flags().StringVar(&serverName, "name", "", "Display name")
	serversAddCmd.Flags().StringVar(&serverToken, "token", "", "X-Plex-Token for the server")

	serversCmd.AddCommand(serversListCmd, serversAddCmd, serversRemoveCmd, serversTestCmd)
}

// withDatabase loads the config, opens the server database and runs fn.
func withDatabase(fn func(ctx context.Context, db *database.SqliteDatabase, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd.Context(), db, args)
	}
}
