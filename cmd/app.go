package cmd

import (
	"context"
	"errors"
	"fmt"
	"go-pulsemap/config"
	"go-pulsemap/db"
	"go-pulsemap/feed"
	"go-pulsemap/geocode"
	"go-pulsemap/metrics"
	"go-pulsemap/processor"
	"go-pulsemap/summarization"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the process-wide components. There is exactly one resolver, and with it one
// rate gate and one geocode cache, per process.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	store      db.Store
	feed       *feed.Service
	resolver   *geocode.Resolver
	syncer     *processor.Syncer
	summarizer *summarization.Summarizer
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg.Geocode)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	resolver, err := geocode.NewResolver(provider, geocode.Config{
		Country:          cfg.Geocode.Country,
		MinInterval:      cfg.Geocode.MinInterval,
		CacheTTL:         cfg.Geocode.CacheTTL,
		NegativeCacheTTL: cfg.Geocode.NegativeCacheTTL,
		Clock:            clock.WallClock,
	}, logger, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	mode, err := feed.ParseMode(cfg.Feed.Mode)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var live feed.Source
	if mode != feed.ModeMock {
		live = feed.NewClient(feed.ClientConfig{
			BaseURL:   cfg.Feed.APIURL,
			UserAgent: cfg.Feed.UserAgent,
			Timeout:   cfg.Feed.Timeout,
			PageSize:  cfg.Feed.PageSize,
			MaxPages:  cfg.Feed.MaxPages,
		}, logger)
	}
	feedService, err := feed.NewService(mode, live, feed.NewMockSource(clock.WallClock), logger, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	syncer, err := processor.NewSyncer(processor.Options{
		Feed:             feedService,
		Resolver:         resolver,
		Store:            store,
		Logger:           logger,
		Metrics:          m,
		Clock:            clock.WallClock,
		BacklogBatchSize: cfg.Sync.BacklogBatchSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	summarizer, err := summarization.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	if err != nil {
		if !errors.Is(err, summarization.ErrNoAPIKey) {
			_ = store.Close()
			return nil, err
		}
		logger.Info("OPENAI_API_KEY not set, thread summaries disabled")
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		store:      store,
		feed:       feedService,
		resolver:   resolver,
		syncer:     syncer,
		summarizer: summarizer,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Error closing store", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory store, incidents are lost on restart")
		return db.NewMemoryStore(clock.WallClock), nil

	case config.DriverPostgres:
		conn, err := db.NewPostgresDB(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateUp(conn, logger); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return db.NewPostgresStore(conn, logger), nil

	case config.DriverFirestore:
		client, err := db.InitFirestore(ctx, cfg.FirebaseCredentials)
		if err != nil {
			return nil, err
		}
		return db.NewFirestoreStore(client, clock.WallClock, logger), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func newProvider(cfg config.GeocodeConfig) (geocode.Provider, error) {
	switch cfg.Provider {
	case config.ProviderNominatim:
		return geocode.NewNominatim(geocode.NominatimConfig{
			BaseURL:   cfg.NominatimURL,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
		})
	case config.ProviderGoogle:
		return geocode.NewGoogleMaps(cfg.GoogleAPIKey, "no")
	}
	return nil, fmt.Errorf("unknown geocode provider %q: %w", cfg.Provider, geocode.ErrNotConfigured)
}
