package geocode

import (
	"context"
	"errors"
	"go-pulsemap/types"
)

// ErrNotConfigured is returned when a resolver or provider is missing required settings.
var ErrNotConfigured = errors.New("geocoder not configured")

// Place is the best match a provider found for a search query.
// Type and Class follow OpenStreetMap naming (e.g. "building", "suburb", class "place").
type Place struct {
	Lat         float64
	Lng         float64
	DisplayName string
	Type        string
	Class       string
}

func (p Place) Coordinates() *types.Coordinates {
	return &types.Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// Provider talks to an external geocoding service. Search returns nil, nil when
// nothing matched.
type Provider interface {
	Search(ctx context.Context, query string) (*Place, error)
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}
