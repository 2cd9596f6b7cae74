package db

import (
	"context"
	"go-pulsemap/types"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newIncident(id, thread string, published time.Time) *types.EnrichedIncident {
	return &types.EnrichedIncident{
		RawIncident: types.RawIncident{
			ID:          id,
			Published:   published,
			Location:    "Storgata 15",
			District:    "Oslo",
			Category:    "Trafikkulykke",
			Title:       "Trafikkulykke",
			Description: "Bil og sykkel kolliderte.",
		},
		ThreadID:       thread,
		Precision:      types.UnknownLocation,
		Severity:       types.Medium,
		IncidentStatus: types.Active,
	}
}

func TestMemoryStore_UpsertPreservesAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))

	inc := newIncident("a1", "t1", storeNow.Add(-time.Hour))
	inc.GeocodingAttempts = 5
	require.NoError(t, s.Upsert(ctx, inc))

	got, err := s.GetIncident(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, got.GeocodingAttempts)

	require.NoError(t, s.UpdateGeocode(ctx, "a1", nil, types.UnknownLocation))

	updated := newIncident("a1", "t1", storeNow.Add(-time.Hour))
	updated.Description = "Syklist kjørt til sykehus."
	updated.IncidentStatus = types.Closed
	updated.Coordinates = &types.Coordinates{Lat: 59.91, Lng: 10.75}
	updated.Precision = types.Street
	require.NoError(t, s.Upsert(ctx, updated))

	got, err = s.GetIncident(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.GeocodingAttempts)
	assert.NotNil(t, got.LastGeocoded)
	assert.Equal(t, "Syklist kjørt til sykehus.", got.Description)
	assert.Equal(t, types.Closed, got.IncidentStatus)
	assert.Equal(t, types.Street, got.Precision)
	require.NotNil(t, got.Coordinates)
	assert.InDelta(t, 59.91, got.Coordinates.Lat, 1e-9)
}

func TestMemoryStore_GetByThreadOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))

	require.NoError(t, s.Upsert(ctx, newIncident("late", "t1", storeNow.Add(-time.Hour))))
	require.NoError(t, s.Upsert(ctx, newIncident("early", "t1", storeNow.Add(-3*time.Hour))))
	require.NoError(t, s.Upsert(ctx, newIncident("other", "t2", storeNow.Add(-2*time.Hour))))

	thread, err := s.GetByThread(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "early", thread[0].ID)
	assert.Equal(t, "late", thread[1].ID)

	empty, err := s.GetByThread(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_GetByThreadBreaksTiesByID(t *testing.T) {
	store := NewMemoryStore(testclock.NewClock(storeNow))
	ctx := context.Background()
	at := storeNow.Add(-time.Hour)

	for _, id := range []string{"c", "a", "d", "b"} {
		require.NoError(t, store.Upsert(ctx, newIncident(id, "t1", at)))
	}

	for range 5 {
		thread, err := store.GetByThread(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, thread, 4)
		assert.Equal(t, []string{"a", "b", "c", "d"},
			[]string{thread[0].ID, thread[1].ID, thread[2].ID, thread[3].ID})
	}
}

func TestMemoryStore_AppendUpdateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))

	u := types.IncidentUpdate{IncidentID: "a2", Timestamp: storeNow, Description: "Oppdatering", Status: "Pågår"}
	require.NoError(t, s.AppendUpdate(ctx, "t1", u))
	require.NoError(t, s.AppendUpdate(ctx, "t1", u))
	require.NoError(t, s.AppendUpdate(ctx, "t1", types.IncidentUpdate{
		IncidentID: "a3", Timestamp: storeNow.Add(-time.Minute), Description: "Første",
	}))

	updates, err := s.GetThreadUpdates(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "a3", updates[0].IncidentID)
	assert.Equal(t, "a2", updates[1].IncidentID)
}

func TestMemoryStore_GetNeedingGeocode(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(storeNow)
	s := NewMemoryStore(clk)

	require.NoError(t, s.Upsert(ctx, newIncident("fresh", "t1", storeNow.Add(-time.Hour))))
	require.NoError(t, s.Upsert(ctx, newIncident("older", "t2", storeNow.Add(-2*time.Hour))))

	resolved := newIncident("resolved", "t3", storeNow)
	resolved.Coordinates = &types.Coordinates{Lat: 59.9, Lng: 10.7}
	require.NoError(t, s.Upsert(ctx, resolved))

	pending, err := s.GetNeedingGeocode(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "fresh", pending[0].ID)
	assert.Equal(t, "older", pending[1].ID)

	limited, err := s.GetNeedingGeocode(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// an attempt puts the incident on cooldown for a day
	require.NoError(t, s.UpdateGeocode(ctx, "fresh", nil, types.UnknownLocation))
	pending, err = s.GetNeedingGeocode(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "older", pending[0].ID)

	clk.Advance(GeocodeCooldown + time.Minute)
	pending, err = s.GetNeedingGeocode(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMemoryStore_AttemptCap(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(storeNow)
	s := NewMemoryStore(clk)
	require.NoError(t, s.Upsert(ctx, newIncident("a1", "t1", storeNow)))

	for i := 0; i < MaxGeocodeAttempts; i++ {
		require.NoError(t, s.UpdateGeocode(ctx, "a1", nil, types.UnknownLocation))
		clk.Advance(GeocodeCooldown + time.Minute)
	}

	pending, err := s.GetNeedingGeocode(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{Total: 1, Active: 1}, stats)
}

func TestMemoryStore_UpdateGeocodeKeepsCoordinatesOnMiss(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))

	inc := newIncident("a1", "t1", storeNow)
	inc.Coordinates = &types.Coordinates{Lat: 59.9, Lng: 10.7}
	require.NoError(t, s.Upsert(ctx, inc))
	require.NoError(t, s.UpdateGeocode(ctx, "a1", nil, types.UnknownLocation))

	got, err := s.GetIncident(ctx, "a1")
	require.NoError(t, err)
	assert.NotNil(t, got.Coordinates)

	assert.ErrorIs(t, s.UpdateGeocode(ctx, "missing", nil, types.UnknownLocation), ErrNotFound)
}

func TestMemoryStore_GetStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))

	geocoded := newIncident("a1", "t1", storeNow)
	geocoded.Coordinates = &types.Coordinates{Lat: 59.9, Lng: 10.7}
	closed := newIncident("a2", "t2", storeNow)
	closed.IncidentStatus = types.Closed
	require.NoError(t, s.Upsert(ctx, geocoded))
	require.NoError(t, s.Upsert(ctx, closed))
	require.NoError(t, s.Upsert(ctx, newIncident("a3", "t3", storeNow)))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{Total: 3, Active: 2, Geocoded: 1, NeedsGeocode: 2}, stats)
}

func TestMemoryStore_ListIncidents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))

	inOslo := newIncident("a1", "t1", storeNow.Add(-time.Hour))
	inOslo.Coordinates = &types.Coordinates{Lat: 59.91, Lng: 10.75}
	theft := newIncident("a2", "t2", storeNow.Add(-2*time.Hour))
	theft.Category = "Tyveri"
	theft.Severity = types.Low
	older := newIncident("a3", "t3", storeNow.Add(-48*time.Hour))
	for _, inc := range []*types.EnrichedIncident{inOslo, theft, older} {
		require.NoError(t, s.Upsert(ctx, inc))
	}

	all, err := s.ListIncidents(ctx, types.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a1", all[0].ID)
	assert.Equal(t, "a3", all[2].ID)

	byCategory, err := s.ListIncidents(ctx, types.IncidentFilter{Categories: []string{"Tyveri"}})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "a2", byCategory[0].ID)

	from := storeNow.Add(-24 * time.Hour)
	recent, err := s.ListIncidents(ctx, types.IncidentFilter{DateFrom: &from, Severities: []types.Severity{types.Medium}})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a1", recent[0].ID)

	bounds := &types.MapBounds{North: 60, South: 59.8, East: 10.9, West: 10.6}
	inBox, err := s.ListIncidents(ctx, types.IncidentFilter{Bounds: bounds})
	require.NoError(t, err)
	require.Len(t, inBox, 1)
	assert.Equal(t, "a1", inBox[0].ID)
}

func TestMemoryStore_GetIncidentNotFound(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.GetIncident(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(testclock.NewClock(storeNow))
	inc := newIncident("a1", "t1", storeNow)
	inc.Coordinates = &types.Coordinates{Lat: 59.9, Lng: 10.7}
	require.NoError(t, s.Upsert(ctx, inc))

	inc.Coordinates.Lat = 0
	got, err := s.GetIncident(ctx, "a1")
	require.NoError(t, err)
	got.Coordinates.Lng = 0

	again, err := s.GetIncident(ctx, "a1")
	require.NoError(t, err)
	assert.InDelta(t, 59.9, again.Coordinates.Lat, 1e-9)
	assert.InDelta(t, 10.7, again.Coordinates.Lng, 1e-9)
}
