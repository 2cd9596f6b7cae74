package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// GoogleMaps is a Provider backed by the Google Maps geocoding API.
type GoogleMaps struct {
	client *maps.Client
	region string
}

// NewGoogleMaps creates a maps client for the given API key. region biases
// results towards a ccTLD such as "no".
func NewGoogleMaps(apiKey, region string, opts ...maps.ClientOption) (*GoogleMaps, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google maps api key: %w", ErrNotConfigured)
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleMaps{client: client, region: region}, nil
}

// Search forward geocodes the query and maps the first result's types onto OSM place types.
func (g *GoogleMaps) Search(ctx context.Context, query string) (*Place, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: query,
		Region:  g.region,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	place := placeFromGoogle(results[0])
	return &place, nil
}

func (g *GoogleMaps) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].FormattedAddress, nil
}

// googlePlaceTypes maps Google result types to the OSM type/class pairs DeterminePrecision understands.
var googlePlaceTypes = []struct {
	google string
	osm    string
	class  string
}{
	{"premise", "building", "building"},
	{"subpremise", "building", "building"},
	{"street_address", "house", "place"},
	{"route", "road", "highway"},
	{"neighborhood", "neighbourhood", "place"},
	{"sublocality", "suburb", "place"},
	{"sublocality_level_1", "suburb", "place"},
	{"administrative_area_level_3", "municipality", "boundary"},
	{"administrative_area_level_2", "municipality", "boundary"},
	{"locality", "city", "place"},
}

func placeFromGoogle(r maps.GeocodingResult) Place {
	place := Place{
		Lat:         r.Geometry.Location.Lat,
		Lng:         r.Geometry.Location.Lng,
		DisplayName: r.FormattedAddress,
	}
	for _, mapping := range googlePlaceTypes {
		for _, t := range r.Types {
			if t == mapping.google {
				place.Type = mapping.osm
				place.Class = mapping.class
				return place
			}
		}
	}
	return place
}
