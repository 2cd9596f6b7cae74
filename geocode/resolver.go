package geocode

import (
	"context"
	"errors"
	"fmt"
	"go-pulsemap/metrics"
	"go-pulsemap/types"
	"time"

	"github.com/juju/clock"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Result is the outcome of resolving one location. Coordinates is nil when the
// location could not be found. Cached reports whether the answer came from memory
// without an outbound request.
type Result struct {
	Coordinates *types.Coordinates `json:"coordinates"`
	Precision   types.Precision    `json:"precision"`
	Cached      bool               `json:"cached"`
}

type Config struct {
	// Country is appended to every query, e.g. "Norway".
	Country string
	// MinInterval is the minimum spacing between outbound requests.
	MinInterval time.Duration
	// CacheTTL is how long found locations are kept. Zero keeps them for the process lifetime.
	CacheTTL time.Duration
	// NegativeCacheTTL is how long failed or empty lookups are kept.
	NegativeCacheTTL time.Duration
	Clock            clock.Clock
}

// Resolver turns free-text locations into coordinates. It owns the process-wide
// rate gate and lookup cache, so construct exactly one per process.
type Resolver struct {
	provider Provider
	gate     *Gate
	cache    *cache.Cache
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewResolver(provider Provider, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Resolver, error) {
	if provider == nil {
		return nil, fmt.Errorf("resolver provider: %w", ErrNotConfigured)
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("negative min interval %s: %w", cfg.MinInterval, ErrNotConfigured)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	positiveTTL := cfg.CacheTTL
	if positiveTTL == 0 {
		positiveTTL = cache.NoExpiration
	}
	cleanup := 10 * time.Minute
	if cfg.NegativeCacheTTL > 0 && cfg.NegativeCacheTTL < cleanup {
		cleanup = cfg.NegativeCacheTTL
	}

	return &Resolver{
		provider: provider,
		gate:     NewGate(cfg.Clock, cfg.MinInterval),
		cache:    cache.New(positiveTTL, cleanup),
		cfg:      cfg,
		logger:   logger.Named("geocode"),
		metrics:  m,
	}, nil
}

// Resolve looks up a location within a district. A location that cannot be found, or a
// provider failure, yields nil coordinates with unknown precision rather than an error.
// Errors are only returned for a nil resolver or a cancelled context.
func (r *Resolver) Resolve(ctx context.Context, location, district string) (Result, error) {
	if r == nil || r.provider == nil {
		return Result{}, ErrNotConfigured
	}

	key := location + "|" + district
	if cached, found := r.cache.Get(key); found {
		if res, ok := cached.(Result); ok {
			r.metrics.GeocodeLookup("hit")
			res.Cached = true
			return res, nil
		}
	}

	query := location + ", " + district
	if r.cfg.Country != "" {
		query += ", " + r.cfg.Country
	}

	var (
		place  *Place
		shared *Result
	)
	waited, err := r.gate.Do(ctx, func(ctx context.Context) error {
		// a concurrent lookup for the same key may have finished while we waited
		if cached, found := r.cache.Get(key); found {
			if res, ok := cached.(Result); ok {
				shared = &res
				return nil
			}
		}
		var searchErr error
		place, searchErr = r.provider.Search(ctx, query)
		return searchErr
	})
	r.metrics.RateLimitWaited(waited)

	if err == nil && shared != nil {
		r.metrics.GeocodeLookup("hit")
		shared.Cached = true
		return *shared, nil
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Result{}, err
		}
		r.metrics.GeocodeLookup("error")
		r.logger.Warn("Geocoding failed",
			zap.String("location", location),
			zap.String("district", district),
			zap.Error(err))
		res := Result{Precision: types.UnknownLocation}
		r.cache.Set(key, res, r.negativeTTL())
		return res, nil
	}

	if place == nil {
		r.metrics.GeocodeLookup("not_found")
		r.logger.Debug("No geocoding match", zap.String("query", query))
		res := Result{Precision: types.UnknownLocation}
		r.cache.Set(key, res, r.negativeTTL())
		return res, nil
	}

	r.metrics.GeocodeLookup("found")
	res := Result{
		Coordinates: place.Coordinates(),
		Precision:   DeterminePrecision(*place, location),
	}
	r.cache.Set(key, res, cache.DefaultExpiration)
	return res, nil
}

// Reverse returns a display address for coordinates, or "" when the provider has none.
// It shares the rate gate with Resolve but is not cached.
func (r *Resolver) Reverse(ctx context.Context, c types.Coordinates) (string, error) {
	if r == nil || r.provider == nil {
		return "", ErrNotConfigured
	}

	var address string
	waited, err := r.gate.Do(ctx, func(ctx context.Context) error {
		var reverseErr error
		address, reverseErr = r.provider.Reverse(ctx, c.Lat, c.Lng)
		return reverseErr
	})
	r.metrics.RateLimitWaited(waited)
	if err != nil {
		return "", fmt.Errorf("reverse geocode (%f, %f): %w", c.Lat, c.Lng, err)
	}
	return address, nil
}

// CacheSize is the number of cached lookups, including expired entries not yet evicted.
func (r *Resolver) CacheSize() int {
	if r == nil {
		return 0
	}
	return r.cache.ItemCount()
}

func (r *Resolver) ClearCache() {
	if r != nil {
		r.cache.Flush()
	}
}

func (r *Resolver) negativeTTL() time.Duration {
	if r.cfg.NegativeCacheTTL > 0 {
		return r.cfg.NegativeCacheTTL
	}
	return cache.DefaultExpiration
}
