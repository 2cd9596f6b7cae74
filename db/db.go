package db

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"go-pulsemap/types"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
)

// MaxGeocodeAttempts is how many times an incident is sent to the geocoder before it is left alone.
const MaxGeocodeAttempts = 3

// GeocodeCooldown is the minimum time between two geocoding attempts for the same incident.
const GeocodeCooldown = 24 * time.Hour

// listLimit caps ListIncidents results.
const listLimit = 1000

var ErrNotFound = errors.New("incident not found")

// Store persists enriched incidents and their thread update log.
type Store interface {
	// Upsert inserts the incident, or overwrites its mutable fields when the id already exists.
	// Attempt counters and last-geocoded timestamps are never touched by Upsert.
	Upsert(ctx context.Context, inc *types.EnrichedIncident) error
	// GetByThread returns the thread's incidents, oldest first.
	GetByThread(ctx context.Context, threadID string) ([]types.EnrichedIncident, error)
	// AppendUpdate records an update; a repeat of (incident id, timestamp) is a no-op.
	AppendUpdate(ctx context.Context, threadID string, u types.IncidentUpdate) error
	// GetNeedingGeocode returns unresolved incidents still eligible for another attempt, newest first.
	GetNeedingGeocode(ctx context.Context, limit int) ([]types.EnrichedIncident, error)
	// UpdateGeocode stores an attempt outcome. nil coordinates leave existing ones in place.
	UpdateGeocode(ctx context.Context, id string, coords *types.Coordinates, precision types.Precision) error
	GetStats(ctx context.Context) (types.Stats, error)
	GetIncident(ctx context.Context, id string) (*types.EnrichedIncident, error)
	ListIncidents(ctx context.Context, filter types.IncidentFilter) ([]types.EnrichedIncident, error)
	GetThreadUpdates(ctx context.Context, threadID string) ([]types.IncidentUpdate, error)
	Ping(ctx context.Context) error
	Close() error
}

// HashString hashes a given string using SHA-256 and returns its hex representation.
func HashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// InitFirestore builds a Firestore client from base64-encoded service account JSON.
func InitFirestore(ctx context.Context, encodedCreds string) (*firestore.Client, error) {
	if encodedCreds == "" {
		return nil, fmt.Errorf("firestore credentials are not set")
	}
	creds, err := base64.StdEncoding.DecodeString(encodedCreds)
	if err != nil {
		return nil, fmt.Errorf("failed to decode firestore credentials: %w", err)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}
	return client, nil
}

// needsGeocode is the backlog eligibility rule shared by the in-process stores.
func needsGeocode(inc *types.EnrichedIncident, now time.Time) bool {
	if inc.Coordinates != nil || inc.GeocodingAttempts >= MaxGeocodeAttempts {
		return false
	}
	return inc.LastGeocoded == nil || inc.LastGeocoded.Before(now.Add(-GeocodeCooldown))
}

// matchesFilter applies an IncidentFilter in memory.
func matchesFilter(inc *types.EnrichedIncident, f types.IncidentFilter) bool {
	if len(f.Categories) > 0 && !contains(f.Categories, inc.Category) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, inc.IncidentStatus) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, inc.Severity) {
		return false
	}
	if len(f.Precisions) > 0 && !contains(f.Precisions, inc.Precision) {
		return false
	}
	if len(f.Districts) > 0 && !contains(f.Districts, inc.District) {
		return false
	}
	if f.DateFrom != nil && inc.Published.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && inc.Published.After(*f.DateTo) {
		return false
	}
	if f.Bounds != nil && (inc.Coordinates == nil || !f.Bounds.Contains(*inc.Coordinates)) {
		return false
	}
	return true
}

func contains[T comparable](slice []T, item T) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
