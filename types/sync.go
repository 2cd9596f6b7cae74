package types

import "time"

// Stats are the aggregate counters reported by the store.
type Stats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Geocoded     int `json:"geocoded"`
	NeedsGeocode int `json:"needsGeocode"`
}

// SyncError records one failure during a sync cycle. IncidentID is empty
// for cycle-level failures such as a feed outage.
type SyncError struct {
	IncidentID string `json:"incidentId,omitempty"`
	Message    string `json:"message"`
}

type SyncResult struct {
	RunID           string      `json:"runId,omitempty"`
	Fetched         int         `json:"fetched"`
	Processed       int         `json:"processed"`
	BacklogGeocoded int         `json:"backlogGeocoded"`
	Errors          []SyncError `json:"errors"`
	// Origin is where the fetched incidents came from: live, mock or fallback.
	Origin     string    `json:"origin,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	Note       string    `json:"note,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// SyncStats is the snapshot returned by the sync status endpoint.
type SyncStats struct {
	Stats
	CacheEntries int         `json:"geocodingCache"`
	SyncRunning  bool        `json:"syncRunning"`
	LastRun      *SyncResult `json:"lastRun,omitempty"`
}
