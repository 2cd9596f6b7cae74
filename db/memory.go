package db

import (
	"context"
	"go-pulsemap/types"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
)

type updateKey struct {
	incidentID string
	timestamp  int64
}

type storedUpdate struct {
	threadID string
	update   types.IncidentUpdate
}

// MemoryStore keeps everything in process. Used for local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	clock     clock.Clock
	incidents map[string]*types.EnrichedIncident
	updates   []storedUpdate
	seen      map[updateKey]struct{}
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryStore{
		clock:     clk,
		incidents: make(map[string]*types.EnrichedIncident),
		seen:      make(map[updateKey]struct{}),
	}
}

func (s *MemoryStore) Upsert(_ context.Context, inc *types.EnrichedIncident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.incidents[inc.ID]
	if !ok {
		stored := cloneIncident(inc)
		stored.GeocodingAttempts = 0
		stored.LastGeocoded = nil
		stored.Updates = nil
		s.incidents[inc.ID] = stored
		return nil
	}

	existing.LastModified = copyTime(inc.LastModified)
	existing.Description = inc.Description
	existing.Status = inc.Status
	existing.Coordinates = copyCoords(inc.Coordinates)
	existing.Precision = inc.Precision
	existing.Severity = inc.Severity
	existing.IncidentStatus = inc.IncidentStatus
	return nil
}

func (s *MemoryStore) GetByThread(_ context.Context, threadID string) ([]types.EnrichedIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.EnrichedIncident
	for _, inc := range s.incidents {
		if inc.ThreadID == threadID {
			out = append(out, *cloneIncident(inc))
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) AppendUpdate(_ context.Context, threadID string, u types.IncidentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := updateKey{incidentID: u.IncidentID, timestamp: u.Timestamp.UnixNano()}
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	s.updates = append(s.updates, storedUpdate{threadID: threadID, update: u})
	return nil
}

func (s *MemoryStore) GetNeedingGeocode(_ context.Context, limit int) ([]types.EnrichedIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	var out []types.EnrichedIncident
	for _, inc := range s.incidents {
		if needsGeocode(inc, now) {
			out = append(out, *cloneIncident(inc))
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateGeocode(_ context.Context, id string, coords *types.Coordinates, precision types.Precision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return ErrNotFound
	}
	if coords != nil {
		inc.Coordinates = copyCoords(coords)
	}
	inc.Precision = precision
	inc.GeocodingAttempts++
	now := s.clock.Now().UTC()
	inc.LastGeocoded = &now
	return nil
}

func (s *MemoryStore) GetStats(context.Context) (types.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st types.Stats
	for _, inc := range s.incidents {
		st.Total++
		if inc.IncidentStatus == types.Active {
			st.Active++
		}
		if inc.Coordinates != nil {
			st.Geocoded++
		} else if inc.GeocodingAttempts < MaxGeocodeAttempts {
			st.NeedsGeocode++
		}
	}
	return st, nil
}

func (s *MemoryStore) GetIncident(_ context.Context, id string) (*types.EnrichedIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIncident(inc), nil
}

func (s *MemoryStore) ListIncidents(_ context.Context, filter types.IncidentFilter) ([]types.EnrichedIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.EnrichedIncident
	for _, inc := range s.incidents {
		if matchesFilter(inc, filter) {
			out = append(out, *cloneIncident(inc))
		}
	}
	sortNewestFirst(out)
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out, nil
}

func (s *MemoryStore) GetThreadUpdates(_ context.Context, threadID string) ([]types.IncidentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.IncidentUpdate
	for _, su := range s.updates {
		if su.threadID == threadID {
			out = append(out, su.update)
		}
	}
	sortUpdates(out)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// sortOldestFirst orders by publication time, then id for equal times.
func sortOldestFirst(incidents []types.EnrichedIncident) {
	sort.Slice(incidents, func(i, j int) bool {
		a, b := incidents[i], incidents[j]
		if !a.Published.Equal(b.Published) {
			return a.Published.Before(b.Published)
		}
		return a.ID < b.ID
	})
}

func sortNewestFirst(incidents []types.EnrichedIncident) {
	sort.Slice(incidents, func(i, j int) bool {
		a, b := incidents[i], incidents[j]
		if !a.Published.Equal(b.Published) {
			return a.Published.After(b.Published)
		}
		return a.ID < b.ID
	})
}

func sortUpdates(updates []types.IncidentUpdate) {
	sort.Slice(updates, func(i, j int) bool {
		a, b := updates[i], updates[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.IncidentID < b.IncidentID
	})
}

func cloneIncident(inc *types.EnrichedIncident) *types.EnrichedIncident {
	c := *inc
	c.LastModified = copyTime(inc.LastModified)
	c.LastGeocoded = copyTime(inc.LastGeocoded)
	c.Coordinates = copyCoords(inc.Coordinates)
	if inc.Updates != nil {
		c.Updates = append([]types.IncidentUpdate(nil), inc.Updates...)
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyCoords(c *types.Coordinates) *types.Coordinates {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
