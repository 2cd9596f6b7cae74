package cmd

import (
	"fmt"
	"go-pulsemap/config"
	"go-pulsemap/db"

	"github.com/spf13/cobra"
)

func migrateCommand(rt *cliContext) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, roll back) the Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires store.driver=postgres, got %q", rt.cfg.Store.Driver)
			}

			conn, err := db.NewPostgresDB(rt.cfg.Store.DatabaseURL, rt.logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if down > 0 {
				return db.MigrateDown(conn, down, rt.logger)
			}
			return db.MigrateUp(conn, rt.logger)
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")
	return cmd
}
