package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func syncCommand(rt *cliContext) *cobra.Command {
	var (
		district string
		days     int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if district == "" {
				district = rt.cfg.Sync.District
			}
			if days <= 0 {
				days = rt.cfg.Sync.DaysBack
			}

			a, err := newApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.syncer.SyncIncidents(cmd.Context(), district, days)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&district, "district", "", "police district to sync (default from config)")
	cmd.Flags().IntVar(&days, "days", 0, "days back to fetch (default from config)")
	return cmd
}
