// Package threads groups incident reports that describe the same evolving event.
package threads

import (
	"go-pulsemap/types"
	"regexp"
	"strings"
)

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]`)

// ExtractThreadID returns the feed-supplied group id when present. Otherwise it derives
// "<YYYY-MM-DD>-<location>-<category>" from the UTC publication date and the location and
// category text with everything but [a-z0-9] stripped.
//
// Unrelated reports sharing date, location text and category end up in the same thread.
func ExtractThreadID(incident types.RawIncident) string {
	if incident.GroupID != "" {
		return incident.GroupID
	}

	date := incident.Published.UTC().Format("2006-01-02")
	return date + "-" + normalizeKey(incident.Location) + "-" + normalizeKey(incident.Category)
}

func normalizeKey(s string) string {
	return nonKeyChars.ReplaceAllString(strings.ToLower(s), "")
}
