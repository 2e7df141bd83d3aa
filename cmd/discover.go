package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"plexscan-go/database"
	"plexscan-go/gdm"
)

var (
	discoverTimeout time.Duration
	discoverSave    bool
	discoverToken   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find Plex Media Servers on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := gdm.Discover(cmd.Context(), discoverTimeout, nil)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Println("No Plex servers found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tURL\tVERSION")
		for _, s := range servers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ResourceID, s.Name, s.URL(), s.Version)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if !discoverSave {
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		for _, s := range servers {
			server := &database.Server{ID: s.ResourceID, Name: s.Name, URL: s.URL(), Token: discoverToken}
			if err := db.UpsertServer(cmd.Context(), server); err != nil {
				return err
			}
		}
		fmt.Printf("Saved %d server(s)\n", len(servers))
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "How long to wait for replies")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "Store discovered servers in the database")
	discoverCmd.Flags().StringVar(&discoverToken, "token", "", "X-Plex-Token to store with saved servers")
}
