package cmd

import (
	"context"
	"go-pulsemap/config"
	"go-pulsemap/db"
	"go-pulsemap/geocode"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Feed: config.FeedConfig{Mode: config.FeedModeMock},
		Geocode: config.GeocodeConfig{
			Provider:    config.ProviderNominatim,
			UserAgent:   "pulsemap-test",
			Country:     "Norway",
			MinInterval: time.Second,
		},
		Store: config.StoreConfig{Driver: config.DriverMemory},
		Sync:  config.SyncConfig{District: "Oslo", DaysBack: 7, BacklogBatchSize: 50},
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "sync", "migrate"})

	syncCmd, _, err := root.Find([]string{"sync"})
	require.NoError(t, err)
	assert.NotNil(t, syncCmd.Flags().Lookup("district"))
	assert.NotNil(t, syncCmd.Flags().Lookup("days"))
}

func TestNewProvider(t *testing.T) {
	p, err := newProvider(config.GeocodeConfig{Provider: config.ProviderNominatim, UserAgent: "pulsemap-test"})
	require.NoError(t, err)
	assert.IsType(t, &geocode.Nominatim{}, p)

	p, err = newProvider(config.GeocodeConfig{Provider: config.ProviderGoogle, GoogleAPIKey: "AIza-test"})
	require.NoError(t, err)
	assert.IsType(t, &geocode.GoogleMaps{}, p)

	_, err = newProvider(config.GeocodeConfig{Provider: "bing"})
	assert.ErrorIs(t, err, geocode.ErrNotConfigured)
}

func TestOpenStore(t *testing.T) {
	store, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &db.MemoryStore{}, store)

	_, err = openStore(context.Background(), config.StoreConfig{Driver: config.DriverFirestore}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewApp_MockFeed(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.summarizer)
	assert.Equal(t, "mock", string(a.feed.Mode()))
	assert.False(t, a.syncer.Running())
	assert.True(t, a.feed.HealthCheck(context.Background()))
}
