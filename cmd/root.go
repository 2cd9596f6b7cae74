// Package cmd implements the pulsemap command line.
package cmd

import (
	"context"
	"go-pulsemap/config"
	"go-pulsemap/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cliContext is filled in by the root command before any subcommand runs.
type cliContext struct {
	cfg    *config.Config
	logger *zap.Logger
}

// RootCommand builds the command tree.
func RootCommand() *cobra.Command {
	var cfgFile string
	rt := &cliContext{}

	rootCmd := &cobra.Command{
		Use:          "pulsemap",
		Short:        "Police incident ingestion and map API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(
		serveCommand(rt),
		syncCommand(rt),
		migrateCommand(rt),
	)
	return rootCmd
}

func Execute() error {
	return RootCommand().ExecuteContext(context.Background())
}
