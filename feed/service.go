package feed

import (
	"context"
	"errors"
	"fmt"
	"go-pulsemap/metrics"
	"go-pulsemap/types"
	"time"

	"go.uber.org/zap"
)

// Source is anything that can produce raw incidents.
type Source interface {
	FetchIncidents(ctx context.Context, district string, from, to time.Time) ([]types.RawIncident, error)
	FetchIncidentByID(ctx context.Context, id string) (*types.RawIncident, error)
	HealthCheck(ctx context.Context) bool
}

type Mode string

const (
	ModeLive     Mode = "live"
	ModeMock     Mode = "mock"
	ModeFallback Mode = "fallback"
)

const (
	OriginLive     = "live"
	OriginMock     = "mock"
	OriginFallback = "fallback"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModeMock, ModeFallback:
		return Mode(s), nil
	case "":
		return ModeFallback, nil
	}
	return "", fmt.Errorf("unknown feed mode %q", s)
}

// Batch is a fetched set of incidents tagged with where they came from.
type Batch struct {
	Incidents []types.RawIncident
	Origin    string
}

// Service selects between the live feed and the offline data per configured mode.
// In fallback mode a live failure is logged and answered from the offline data.
type Service struct {
	mode    Mode
	live    Source
	offline Source
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService requires an offline source in every mode, and a live source in live mode.
func NewService(mode Mode, live, offline Source, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	if offline == nil {
		return nil, errors.New("feed service needs an offline source")
	}
	if mode == ModeLive && live == nil {
		return nil, errors.New("feed service in live mode needs a live source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		mode:    mode,
		live:    live,
		offline: offline,
		logger:  logger.Named("feed"),
		metrics: m,
	}, nil
}

func (s *Service) Mode() Mode {
	return s.mode
}

func (s *Service) Fetch(ctx context.Context, district string, from, to time.Time) (Batch, error) {
	if s.mode == ModeMock || s.live == nil {
		incidents, err := s.offline.FetchIncidents(ctx, district, from, to)
		if err != nil {
			return Batch{}, err
		}
		s.metrics.FeedFetched(OriginMock)
		return Batch{Incidents: incidents, Origin: OriginMock}, nil
	}

	incidents, err := s.live.FetchIncidents(ctx, district, from, to)
	if err == nil {
		s.metrics.FeedFetched(OriginLive)
		return Batch{Incidents: incidents, Origin: OriginLive}, nil
	}
	if s.mode == ModeLive || ctx.Err() != nil {
		return Batch{}, fmt.Errorf("fetch incidents: %w", err)
	}

	s.logger.Warn("Live feed failed, serving offline incidents",
		zap.String("district", district),
		zap.Error(err))
	incidents, err = s.offline.FetchIncidents(ctx, district, from, to)
	if err != nil {
		return Batch{}, err
	}
	s.metrics.FeedFetched(OriginFallback)
	return Batch{Incidents: incidents, Origin: OriginFallback}, nil
}

func (s *Service) FetchByID(ctx context.Context, id string) (*types.RawIncident, string, error) {
	if s.mode == ModeMock || s.live == nil {
		inc, err := s.offline.FetchIncidentByID(ctx, id)
		return inc, OriginMock, err
	}

	inc, err := s.live.FetchIncidentByID(ctx, id)
	if err == nil {
		return inc, OriginLive, nil
	}
	if s.mode == ModeLive || ctx.Err() != nil {
		return nil, "", fmt.Errorf("fetch incident %s: %w", id, err)
	}

	s.logger.Warn("Live feed failed, serving offline incident",
		zap.String("id", id),
		zap.Error(err))
	inc, err = s.offline.FetchIncidentByID(ctx, id)
	return inc, OriginFallback, err
}

// HealthCheck reports the live feed's health, or the offline source's in mock mode.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if s.mode == ModeMock || s.live == nil {
		return s.offline.HealthCheck(ctx)
	}
	return s.live.HealthCheck(ctx)
}
