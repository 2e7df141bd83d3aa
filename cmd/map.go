package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"plexscan-go/pathmap"
)

var mapCmd = &cobra.Command{
	Use:   "map <path>...",
	Short: "Show how local paths are rewritten for Plex",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mapper := pathmap.FromConfig(cfg.Plex)
		for _, p := range args {
			fmt.Printf("%s -> %s\n", p, mapper.Map(p))
		}
		return nil
	},
}
