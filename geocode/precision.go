package geocode

import (
	"go-pulsemap/types"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	hasNumber     = regexp.MustCompile(`\d+`)
	hasStreetWord = regexp.MustCompile(`(?i)(gate|vei|veien|plass|allé|gata|street|road)`)
)

// DeterminePrecision grades how specific a match is from the original location text and
// the place type reported by the provider.
func DeterminePrecision(place Place, location string) types.Precision {
	text := strings.ToLower(location)
	number := hasNumber.MatchString(text)
	street := hasStreetWord.MatchString(text)

	switch {
	case number && street:
		switch place.Type {
		case "house", "building", "residential":
			return types.Exact
		}
		return types.Street
	case street:
		return types.Street
	}

	switch place.Type {
	case "neighbourhood", "suburb", "quarter":
		return types.Area
	}
	if place.Class == "place" {
		return types.Area
	}

	switch place.Type {
	case "city_district", "district", "municipality":
		return types.District
	}

	if utf8.RuneCountInString(text) < 10 || len(strings.Fields(text)) <= 2 {
		return types.District
	}
	return types.Area
}
