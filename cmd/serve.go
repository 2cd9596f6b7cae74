package cmd

import (
	"context"
	"errors"
	"go-pulsemap/cronjobs"
	"go-pulsemap/handlers"
	"go-pulsemap/routes"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func serveCommand(rt *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *cliContext) error {
	cfg, logger := rt.cfg, rt.logger

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Sync.Enabled {
		c, err := cronjobs.InitCronJobs(a.syncer, cronjobs.Config{
			District:        cfg.Sync.District,
			DaysBack:        cfg.Sync.DaysBack,
			SyncSchedule:    cfg.Sync.Schedule,
			BacklogSchedule: cfg.Sync.BacklogSchedule,
		}, logger)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := routes.Deps{
		Store:    a.store,
		Syncer:   a.syncer,
		Feed:     a.feed,
		Geocoder: a.resolver,
		Defaults: handlers.SyncDefaults{
			District: cfg.Sync.District,
			DaysBack: cfg.Sync.DaysBack,
		},
		Gatherer:  a.registry,
		ClientURL: cfg.Server.ClientURL,
		Logger:    logger,
	}
	if a.summarizer != nil {
		deps.Summarizer = a.summarizer
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           routes.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", srv.Addr),
			zap.String("feed_mode", string(a.feed.Mode())),
			zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
