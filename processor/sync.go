package processor

import (
	"context"
	"errors"
	"fmt"
	"go-pulsemap/classifier"
	"go-pulsemap/db"
	"go-pulsemap/feed"
	"go-pulsemap/geocode"
	"go-pulsemap/metrics"
	"go-pulsemap/threads"
	"go-pulsemap/types"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

const (
	defaultDaysBack         = 7
	defaultBacklogBatchSize = 50
)

// FeedSource is the part of feed.Service the sync pipeline needs.
type FeedSource interface {
	Fetch(ctx context.Context, district string, from, to time.Time) (feed.Batch, error)
	FetchByID(ctx context.Context, id string) (*types.RawIncident, string, error)
	HealthCheck(ctx context.Context) bool
}

// LocationResolver is the part of geocode.Resolver the sync pipeline needs.
type LocationResolver interface {
	Resolve(ctx context.Context, location, district string) (geocode.Result, error)
	CacheSize() int
}

type Options struct {
	Feed             FeedSource
	Resolver         LocationResolver
	Store            db.Store
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
	Clock            clock.Clock
	BacklogBatchSize int
}

// Syncer runs ingestion cycles. At most one cycle or standalone backlog sweep runs at a time;
// a second request while one is in flight returns immediately without doing any work.
type Syncer struct {
	feed      FeedSource
	resolver  LocationResolver
	store     db.Store
	logger    *zap.Logger
	metrics   *metrics.Metrics
	clock     clock.Clock
	batchSize int

	running atomic.Bool
	mu      sync.Mutex
	lastRun *types.SyncResult
}

func NewSyncer(opts Options) (*Syncer, error) {
	if opts.Feed == nil {
		return nil, fmt.Errorf("syncer needs a feed source")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("syncer needs a store")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("syncer resolver: %w", geocode.ErrNotConfigured)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.BacklogBatchSize <= 0 {
		opts.BacklogBatchSize = defaultBacklogBatchSize
	}

	return &Syncer{
		feed:      opts.Feed,
		resolver:  opts.Resolver,
		store:     opts.Store,
		logger:    opts.Logger.Named("sync"),
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		batchSize: opts.BacklogBatchSize,
	}, nil
}

func (s *Syncer) Running() bool {
	return s.running.Load()
}

// SyncIncidents fetches the last daysBack days for a district and runs every incident through
// the pipeline in feed order, then sweeps the geocoding backlog.
// The cycle runs to completion even if ctx is cancelled; outbound calls are bounded by their
// own timeouts. The returned error is non-nil only for misconfiguration; feed outages and
// per-incident failures are reported in the result.
func (s *Syncer) SyncIncidents(ctx context.Context, district string, daysBack int) (types.SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Sync already running, skipping")
		s.metrics.SyncCompleted("skipped", 0)
		return s.skipped(), nil
	}
	defer s.running.Store(false)

	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}

	start := s.clock.Now().UTC()
	res := types.SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: start,
		Errors:    []types.SyncError{},
	}
	logger := s.logger.With(zap.String("run_id", res.RunID), zap.String("district", district))

	from := start.AddDate(0, 0, -daysBack)
	logger.Info("Syncing incidents",
		zap.Time("from", from),
		zap.Time("to", start))

	batch, err := s.feed.Fetch(ctx, district, from, start)
	if err != nil {
		logger.Error("Feed fetch failed", zap.Error(err))
		s.metrics.FeedFetched("error")
		res.Errors = append(res.Errors, types.SyncError{Message: fmt.Sprintf("feed: %v", err)})
		return s.finish(res, "failed"), nil
	}
	res.Fetched = len(batch.Incidents)
	res.Origin = batch.Origin
	logger.Info("Fetched incidents",
		zap.Int("count", res.Fetched),
		zap.String("origin", batch.Origin))

	for _, raw := range batch.Incidents {
		if _, err := s.processIncident(ctx, raw); err != nil {
			if fatal(err) {
				logger.Error("Sync aborted", zap.String("incident_id", raw.ID), zap.Error(err))
				return s.finish(res, "failed"), err
			}
			logger.Warn("Error processing incident", zap.String("incident_id", raw.ID), zap.Error(err))
			s.metrics.IncidentDone(false)
			res.Errors = append(res.Errors, types.SyncError{IncidentID: raw.ID, Message: err.Error()})
			continue
		}
		s.metrics.IncidentDone(true)
		res.Processed++
	}

	geocoded, sweepErrs, err := s.geocodeBacklog(ctx, logger)
	res.BacklogGeocoded = geocoded
	res.Errors = append(res.Errors, sweepErrs...)
	if err != nil {
		if fatal(err) {
			return s.finish(res, "failed"), err
		}
		res.Errors = append(res.Errors, types.SyncError{Message: fmt.Sprintf("backlog: %v", err)})
	}

	res = s.finish(res, "completed")
	logger.Info("Sync completed",
		zap.Int("fetched", res.Fetched),
		zap.Int("processed", res.Processed),
		zap.Int("backlog_geocoded", res.BacklogGeocoded),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

// SweepBacklog runs only the backlog sweep, under the same single-flight guard as a full cycle.
func (s *Syncer) SweepBacklog(ctx context.Context) (types.SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Sync already running, skipping backlog sweep")
		return s.skipped(), nil
	}
	defer s.running.Store(false)

	res := types.SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: s.clock.Now().UTC(),
		Errors:    []types.SyncError{},
	}
	logger := s.logger.With(zap.String("run_id", res.RunID))

	geocoded, sweepErrs, err := s.geocodeBacklog(ctx, logger)
	res.BacklogGeocoded = geocoded
	res.Errors = append(res.Errors, sweepErrs...)
	res.FinishedAt = s.clock.Now().UTC()
	if err != nil {
		if fatal(err) {
			return res, err
		}
		res.Errors = append(res.Errors, types.SyncError{Message: fmt.Sprintf("backlog: %v", err)})
	}
	return res, nil
}

// SyncIncidentByID runs a single feed record through the pipeline and returns it as stored.
// It returns nil without error when the feed has no such incident.
func (s *Syncer) SyncIncidentByID(ctx context.Context, id string) (*types.EnrichedIncident, error) {
	raw, origin, err := s.feed.FetchByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch incident %s: %w", id, err)
	}
	if raw == nil {
		return nil, nil
	}

	if _, err := s.processIncident(ctx, *raw); err != nil {
		return nil, err
	}
	s.logger.Info("Synced single incident", zap.String("incident_id", id), zap.String("origin", origin))

	stored, err := s.store.GetIncident(ctx, raw.ID)
	if err != nil {
		return nil, fmt.Errorf("load incident %s: %w", id, err)
	}
	return stored, nil
}

func (s *Syncer) Stats(ctx context.Context) (types.SyncStats, error) {
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return types.SyncStats{}, err
	}

	s.mu.Lock()
	lastRun := s.lastRun
	s.mu.Unlock()

	return types.SyncStats{
		Stats:        stats,
		CacheEntries: s.resolver.CacheSize(),
		SyncRunning:  s.Running(),
		LastRun:      lastRun,
	}, nil
}

// processIncident classifies, threads, resolves and persists one incident. An incident joining a
// thread that already has members is also recorded in the thread's update log.
func (s *Syncer) processIncident(ctx context.Context, raw types.RawIncident) (*types.EnrichedIncident, error) {
	threadID := threads.ExtractThreadID(raw)

	existing, err := s.store.GetByThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	isUpdate := len(existing) > 0

	loc, err := s.resolver.Resolve(ctx, raw.Location, raw.District)
	if err != nil {
		return nil, fmt.Errorf("resolve location: %w", err)
	}

	inc := &types.EnrichedIncident{
		RawIncident:    raw,
		ThreadID:       threadID,
		Coordinates:    loc.Coordinates,
		Precision:      loc.Precision,
		Severity:       classifier.ClassifySeverity(raw),
		IncidentStatus: classifier.ClassifyStatus(raw),
	}
	if err := s.store.Upsert(ctx, inc); err != nil {
		return nil, err
	}

	// a lookup that reached the geocoder counts as an attempt
	if !loc.Cached {
		if err := s.store.UpdateGeocode(ctx, raw.ID, loc.Coordinates, loc.Precision); err != nil {
			return nil, err
		}
	}

	if isUpdate {
		ts := raw.Published
		if raw.LastModified != nil {
			ts = *raw.LastModified
		}
		err := s.store.AppendUpdate(ctx, threadID, types.IncidentUpdate{
			IncidentID:  raw.ID,
			Timestamp:   ts,
			Description: raw.Description,
			Status:      raw.Status,
		})
		if err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Processed incident",
		zap.String("incident_id", raw.ID),
		zap.String("thread_id", threadID),
		zap.String("severity", string(inc.Severity)),
		zap.String("precision", string(inc.Precision)),
		zap.Bool("update", isUpdate))
	return inc, nil
}

// geocodeBacklog retries unresolved incidents. Every attempt is recorded, found or not.
func (s *Syncer) geocodeBacklog(ctx context.Context, logger *zap.Logger) (int, []types.SyncError, error) {
	pending, err := s.store.GetNeedingGeocode(ctx, s.batchSize)
	if err != nil {
		return 0, nil, fmt.Errorf("load geocode backlog: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil, nil
	}
	logger.Info("Geocoding backlog", zap.Int("count", len(pending)))

	var errs []types.SyncError
	geocoded := 0
	for _, inc := range pending {
		loc, err := s.resolver.Resolve(ctx, inc.Location, inc.District)
		if err != nil {
			if fatal(err) {
				s.metrics.BacklogResolved(geocoded)
				return geocoded, errs, err
			}
			loc = geocode.Result{Precision: types.UnknownLocation}
		}

		if err := s.store.UpdateGeocode(ctx, inc.ID, loc.Coordinates, loc.Precision); err != nil {
			logger.Warn("Failed to record geocode attempt", zap.String("incident_id", inc.ID), zap.Error(err))
			errs = append(errs, types.SyncError{IncidentID: inc.ID, Message: err.Error()})
			continue
		}
		if loc.Coordinates != nil {
			geocoded++
		}
	}

	s.metrics.BacklogResolved(geocoded)
	return geocoded, errs, nil
}

func (s *Syncer) skipped() types.SyncResult {
	now := s.clock.Now().UTC()
	return types.SyncResult{
		Errors:     []types.SyncError{},
		Skipped:    true,
		Note:       "sync already running",
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (s *Syncer) finish(res types.SyncResult, outcome string) types.SyncResult {
	res.FinishedAt = s.clock.Now().UTC()
	s.metrics.SyncCompleted(outcome, res.FinishedAt.Sub(res.StartedAt))

	s.mu.Lock()
	last := res
	s.lastRun = &last
	s.mu.Unlock()
	return res
}

// fatal reports errors that end a cycle instead of being recorded against one incident.
func fatal(err error) bool {
	return errors.Is(err, geocode.ErrNotConfigured)
}
