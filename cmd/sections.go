package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sectionsServer string

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List the library sections of a Plex server",
	Long: `List the library sections of a Plex server with their ids and folders.
Use this to find the section_id and the plex_path side of a path mapping.`,
	Args: cobra.NoArgs,
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
		server, err := resolveServer(ctx, cfg, db, sectionsServer)
		if err != nil {
			return err
		}

		sections, err := newPlexClient(cfg).Sections(ctx, server.URL, server.Token)
		if err != nil {
			return fmt.Errorf("failed to list sections: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tLOCATIONS")
		for _, s := range sections {
			paths := make([]string, len(s.Locations))
			for i, l := range s.Locations {
				paths[i] = l.Path
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, s.Title, s.Type, strings.Join(paths, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	sectionsCmd.Flags().StringVar(&sectionsServer, "server", "", "Server id (default: plex.server_id)")
}
