package feed

import (
	"encoding/json"
	"fmt"
	"go-pulsemap/types"
	"strconv"
	"strings"
	"time"
)

// fieldKeys lists, per canonical field, the keys the feed has used for it over time.
// The newest known key comes first and wins when several are present.
var fieldKeys = struct {
	id, published, lastModified, location, district,
	category, subcategory, title, description, status, group []string
}{
	id:           []string{"id", "hendelseid", "incident_id"},
	published:    []string{"published", "publisert", "timestamp"},
	lastModified: []string{"lastModified", "sistEndret", "last_modified"},
	location:     []string{"location", "lokasjon", "sted"},
	district:     []string{"district", "politidistrikt", "distrikt"},
	category:     []string{"category", "kategori", "type"},
	subcategory:  []string{"subcategory", "underkategori"},
	title:        []string{"title", "tittel", "overskrift"},
	description:  []string{"description", "beskrivelse", "tekst"},
	status:       []string{"status"},
	group:        []string{"threadId", "thread_id", "gruppeId"},
}

// envelopeKeys are the wrapper objects the feed has been seen to return lists in.
var envelopeKeys = []string{"results", "hendelser", "data", "items"}

const unknownCategory = "Ukjent"

type rawRecord map[string]json.RawMessage

// decodeList accepts a bare JSON array or one of the known envelopes.
// ok is false when the body is valid JSON of an unrecognised shape.
func decodeList(body []byte) (records []rawRecord, ok bool, err error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, false, fmt.Errorf("decode incident list: %w", err)
		}
		return records, true, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("decode incident envelope: %w", err)
	}
	for _, key := range envelopeKeys {
		raw, found := envelope[key]
		if !found || !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			continue
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, false, fmt.Errorf("decode %q list: %w", key, err)
		}
		return records, true, nil
	}
	return nil, false, nil
}

// normalize maps one raw record onto the canonical incident shape.
func normalize(rec rawRecord) (types.RawIncident, error) {
	inc := types.RawIncident{
		ID:          rec.str(fieldKeys.id),
		Location:    rec.str(fieldKeys.location),
		District:    rec.str(fieldKeys.district),
		Category:    rec.str(fieldKeys.category),
		Subcategory: rec.str(fieldKeys.subcategory),
		Title:       rec.str(fieldKeys.title),
		Description: rec.str(fieldKeys.description),
		Status:      rec.str(fieldKeys.status),
		GroupID:     rec.str(fieldKeys.group),
	}
	if inc.ID == "" {
		return inc, fmt.Errorf("incident without id")
	}
	if inc.Category == "" {
		inc.Category = unknownCategory
	}

	published, err := parseTime(rec.str(fieldKeys.published))
	if err != nil {
		return inc, fmt.Errorf("incident %s published: %w", inc.ID, err)
	}
	inc.Published = published

	if s := rec.str(fieldKeys.lastModified); s != "" {
		modified, err := parseTime(s)
		if err != nil {
			return inc, fmt.Errorf("incident %s last modified: %w", inc.ID, err)
		}
		inc.LastModified = &modified
	}
	return inc, nil
}

// str returns the first non-empty value among keys, rendering numbers as text.
func (r rawRecord) str(keys []string) string {
	for _, key := range keys {
		raw, found := r[key]
		if !found {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
