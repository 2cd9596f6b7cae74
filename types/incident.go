package types

import "time"

type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
	Info     Severity = "info"
)

// Status is the activity state of an incident, derived from its text.
type Status string

const (
	Active  Status = "active"
	Updated Status = "updated"
	Closed  Status = "closed"
)

// Precision is the confidence bucket of a resolved location.
type Precision string

const (
	Exact           Precision = "exact"
	Street          Precision = "street"
	Area            Precision = "area"
	District        Precision = "district"
	UnknownLocation Precision = "unknown"
)

type Coordinates struct {
	Lat float64 `firestore:"lat" json:"lat"`
	Lng float64 `firestore:"lng" json:"lng"`
}

// RawIncident is one report as received from the feed.
type RawIncident struct {
	ID           string     `json:"id"`
	Published    time.Time  `json:"published"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Location     string     `json:"location"`
	District     string     `json:"district"`
	Category     string     `json:"category"`
	Subcategory  string     `json:"subcategory,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status,omitempty"`
	// GroupID is the feed-supplied thread identifier, when the feed carries one.
	GroupID string `json:"groupId,omitempty"`
}

// EnrichedIncident is the persisted, queryable incident.
type EnrichedIncident struct {
	RawIncident
	ThreadID          string           `json:"threadId"`
	Coordinates       *Coordinates     `json:"coordinates"`
	Precision         Precision        `json:"precision"`
	Severity          Severity         `json:"severity"`
	IncidentStatus    Status           `json:"incidentStatus"`
	GeocodingAttempts int              `json:"geocodingAttempts"`
	LastGeocoded      *time.Time       `json:"lastGeocoded,omitempty"`
	Updates           []IncidentUpdate `json:"updates"`
}

// IncidentUpdate is one recorded change to an already known thread.
type IncidentUpdate struct {
	IncidentID  string    `firestore:"incidentId" json:"id"`
	Timestamp   time.Time `firestore:"timestamp" json:"timestamp"`
	Description string    `firestore:"description" json:"description"`
	Status      string    `firestore:"status,omitempty" json:"status,omitempty"`
}

// MapBounds is a lat/lng bounding box used to filter incidents on the map.
type MapBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (b MapBounds) Contains(c Coordinates) bool {
	return c.Lat >= b.South && c.Lat <= b.North && c.Lng >= b.West && c.Lng <= b.East
}

// IncidentFilter narrows ListIncidents. Empty slices mean no filtering on that field.
type IncidentFilter struct {
	Categories []string
	Statuses   []Status
	Severities []Severity
	Precisions []Precision
	Districts  []string
	DateFrom   *time.Time
	DateTo     *time.Time
	Bounds     *MapBounds
}
