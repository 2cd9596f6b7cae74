package geocode

import (
	"context"
	"errors"
	"go-pulsemap/types"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider answers from a fixed table and records every outbound call.
type fakeProvider struct {
	mu      sync.Mutex
	clock   clock.Clock
	places  map[string]*Place
	err     error
	queries []string
	stamps  []time.Time
}

func (f *fakeProvider) Search(ctx context.Context, query string) (*Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.clock != nil {
		f.stamps = append(f.stamps, f.clock.Now())
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.places[query], nil
}

func (f *fakeProvider) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	return "Karl Johans gate 22, Oslo", nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func newTestResolver(t *testing.T, p Provider, cfg Config) *Resolver {
	t.Helper()
	if cfg.Country == "" {
		cfg.Country = "Norway"
	}
	r, err := NewResolver(p, cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	return r
}

func TestResolver_FoundAndCached(t *testing.T) {
	provider := &fakeProvider{places: map[string]*Place{
		"Karl Johans gate 22, Oslo, Norway": {Lat: 59.9133, Lng: 10.7389, Type: "building", Class: "building"},
	}}
	r := newTestResolver(t, provider, Config{})

	first, err := r.Resolve(context.Background(), "Karl Johans gate 22", "Oslo")
	require.NoError(t, err)
	require.NotNil(t, first.Coordinates)
	assert.InDelta(t, 59.9133, first.Coordinates.Lat, 1e-9)
	assert.InDelta(t, 10.7389, first.Coordinates.Lng, 1e-9)
	assert.Equal(t, types.Exact, first.Precision)
	assert.False(t, first.Cached)

	second, err := r.Resolve(context.Background(), "Karl Johans gate 22", "Oslo")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Coordinates, second.Coordinates)
	assert.Equal(t, 1, provider.calls())
	assert.Equal(t, 1, r.CacheSize())
}

func TestResolver_QueryIncludesDistrictAndCountry(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestResolver(t, provider, Config{Country: "Norway"})

	_, err := r.Resolve(context.Background(), "Storgata 15", "Oslo")
	require.NoError(t, err)

	assert.Equal(t, []string{"Storgata 15, Oslo, Norway"}, provider.queries)
}

func TestResolver_NotFound(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestResolver(t, provider, Config{})

	res, err := r.Resolve(context.Background(), "Ukjent sted", "Oslo")
	require.NoError(t, err)
	assert.Nil(t, res.Coordinates)
	assert.Equal(t, types.UnknownLocation, res.Precision)
}

func TestResolver_ProviderFailureDegradesAndIsCached(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection reset")}
	r := newTestResolver(t, provider, Config{NegativeCacheTTL: time.Hour})

	res, err := r.Resolve(context.Background(), "Storgata 15", "Oslo")
	require.NoError(t, err)
	assert.Nil(t, res.Coordinates)
	assert.Equal(t, types.UnknownLocation, res.Precision)

	again, err := r.Resolve(context.Background(), "Storgata 15", "Oslo")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, 1, provider.calls())
}

func TestResolver_DistrictIsPartOfCacheKey(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestResolver(t, provider, Config{})

	_, err := r.Resolve(context.Background(), "Storgata", "Oslo")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "Storgata", "Vest")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.calls())
}

func TestResolver_CancelledContext(t *testing.T) {
	r := newTestResolver(t, &fakeProvider{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "Storgata 15", "Oslo")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.CacheSize())
}

func TestResolver_RateLimitSpacing(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	provider := &fakeProvider{clock: clk}
	r := newTestResolver(t, provider, Config{MinInterval: time.Second, Clock: clk})

	locations := []string{"Storgata 15", "Aker Brygge", "Frogner", "Torggata"}
	done := make(chan error, 1)
	go func() {
		for _, loc := range locations {
			if _, err := r.Resolve(context.Background(), loc, "Oslo"); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 1; i < len(locations); i++ {
		require.NoError(t, clk.WaitAdvance(time.Second, testWait, 1))
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("resolver did not finish")
	}

	require.Len(t, provider.stamps, len(locations))
	for i := 1; i < len(provider.stamps); i++ {
		assert.GreaterOrEqual(t, provider.stamps[i].Sub(provider.stamps[i-1]), time.Second)
	}
}

func TestResolver_CacheHitSkipsRateGate(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	provider := &fakeProvider{clock: clk}
	r := newTestResolver(t, provider, Config{MinInterval: time.Second, Clock: clk})

	_, err := r.Resolve(context.Background(), "Storgata 15", "Oslo")
	require.NoError(t, err)

	// without advancing the clock a gated call would block forever
	done := make(chan Result, 1)
	go func() {
		res, _ := r.Resolve(context.Background(), "Storgata 15", "Oslo")
		done <- res
	}()

	select {
	case res := <-done:
		assert.True(t, res.Cached)
	case <-time.After(testWait):
		t.Fatal("cached lookup waited on the rate gate")
	}
	assert.Equal(t, 1, provider.calls())
}

func TestResolver_Reverse(t *testing.T) {
	r := newTestResolver(t, &fakeProvider{}, Config{})

	address, err := r.Reverse(context.Background(), types.Coordinates{Lat: 59.9133, Lng: 10.7389})
	require.NoError(t, err)
	assert.Equal(t, "Karl Johans gate 22, Oslo", address)
}

func TestNewResolver_RequiresProvider(t *testing.T) {
	_, err := NewResolver(nil, Config{}, zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolver_NilResolver(t *testing.T) {
	var r *Resolver
	_, err := r.Resolve(context.Background(), "Storgata 15", "Oslo")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// blockingProvider holds every search until release is closed.
type blockingProvider struct {
	fakeProvider
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingProvider) Search(ctx context.Context, query string) (*Place, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeProvider.Search(ctx, query)
}

func TestResolver_ConcurrentMissesShareOneLookup(t *testing.T) {
	provider := &blockingProvider{
		fakeProvider: fakeProvider{places: map[string]*Place{
			"Storgata 15, Oslo, Norway": {Lat: 59.9149, Lng: 10.7521, Type: "road", Class: "highway"},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := newTestResolver(t, provider, Config{})

	results := make(chan Result, 2)
	resolve := func() {
		res, err := r.Resolve(context.Background(), "Storgata 15", "Oslo")
		assert.NoError(t, err)
		results <- res
	}

	go resolve()
	<-provider.started
	go resolve()

	// let the second lookup miss the cache and queue on the gate
	time.Sleep(50 * time.Millisecond)
	close(provider.release)

	var cached int
	for range 2 {
		select {
		case res := <-results:
			require.NotNil(t, res.Coordinates)
			if res.Cached {
				cached++
			}
		case <-time.After(testWait):
			t.Fatal("resolver did not finish")
		}
	}
	assert.Equal(t, 1, cached)
	assert.Equal(t, 1, provider.calls())
}
