package cronjobs

import (
	"context"
	"fmt"
	"go-pulsemap/types"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Syncer is the part of processor.Syncer the scheduler drives.
type Syncer interface {
	SyncIncidents(ctx context.Context, district string, daysBack int) (types.SyncResult, error)
	SweepBacklog(ctx context.Context) (types.SyncResult, error)
}

type Config struct {
	District        string
	DaysBack        int
	SyncSchedule    string
	BacklogSchedule string
}

// InitCronJobs registers the periodic sync and backlog sweep and starts the scheduler.
// The caller stops it with the returned cron's Stop.
func InitCronJobs(syncer Syncer, cfg Config, logger *zap.Logger) (*cron.Cron, error) {
	logger = logger.Named("cron")
	c := cron.New()

	_, err := c.AddFunc(cfg.SyncSchedule, func() {
		logger.Info("CronJob: incident sync running", zap.String("district", cfg.District))
		res, err := syncer.SyncIncidents(context.Background(), cfg.District, cfg.DaysBack)
		if err != nil {
			logger.Error("CronJob: incident sync failed", zap.Error(err))
			return
		}
		logResult(logger, "incident sync", res)
	})
	if err != nil {
		return nil, fmt.Errorf("error scheduling incident sync %q: %w", cfg.SyncSchedule, err)
	}

	if cfg.BacklogSchedule != "" {
		_, err = c.AddFunc(cfg.BacklogSchedule, func() {
			logger.Info("CronJob: backlog sweep running")
			res, err := syncer.SweepBacklog(context.Background())
			if err != nil {
				logger.Error("CronJob: backlog sweep failed", zap.Error(err))
				return
			}
			logResult(logger, "backlog sweep", res)
		})
		if err != nil {
			return nil, fmt.Errorf("error scheduling backlog sweep %q: %w", cfg.BacklogSchedule, err)
		}
	}

	c.Start()
	logger.Info("Cron jobs started",
		zap.String("sync_schedule", cfg.SyncSchedule),
		zap.String("backlog_schedule", cfg.BacklogSchedule))
	return c, nil
}

func logResult(logger *zap.Logger, job string, res types.SyncResult) {
	if res.Skipped {
		logger.Info("CronJob: skipped, another run in progress", zap.String("job", job))
		return
	}
	logger.Info("CronJob: finished",
		zap.String("job", job),
		zap.String("run_id", res.RunID),
		zap.Int("fetched", res.Fetched),
		zap.Int("processed", res.Processed),
		zap.Int("backlog_geocoded", res.BacklogGeocoded),
		zap.Int("errors", len(res.Errors)))
}
