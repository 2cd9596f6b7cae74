package handlers

import (
	"fmt"
	"go-pulsemap/types"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetIncidents lists stored incidents matching the query string filters, newest first.
func GetIncidents(c *gin.Context, store IncidentReader, logger *zap.Logger) {
	filter, err := parseFilter(c)
	if err != nil {
		failure(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	incidents, err := store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		logger.Error("Failed to list incidents", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to fetch incidents", err)
		return
	}
	if incidents == nil {
		incidents = []types.EnrichedIncident{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"count":     len(incidents),
		"incidents": incidents,
	})
}

func parseFilter(c *gin.Context) (types.IncidentFilter, error) {
	var f types.IncidentFilter
	f.Categories = splitList(c.Query("categories"))
	f.Districts = splitList(c.Query("districts"))
	for _, s := range splitList(c.Query("statuses")) {
		f.Statuses = append(f.Statuses, types.Status(s))
	}
	for _, s := range splitList(c.Query("severities")) {
		f.Severities = append(f.Severities, types.Severity(s))
	}
	for _, s := range splitList(c.Query("precisions")) {
		f.Precisions = append(f.Precisions, types.Precision(s))
	}

	var err error
	if f.DateFrom, err = parseDate(c.Query("dateFrom")); err != nil {
		return f, fmt.Errorf("dateFrom: %w", err)
	}
	if f.DateTo, err = parseDate(c.Query("dateTo")); err != nil {
		return f, fmt.Errorf("dateTo: %w", err)
	}

	if raw := c.Query("bounds"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return f, fmt.Errorf("bounds must be south,west,north,east")
		}
		var v [4]float64
		for i, p := range parts {
			if v[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
				return f, fmt.Errorf("bounds: %w", err)
			}
		}
		f.Bounds = &types.MapBounds{South: v[0], West: v[1], North: v[2], East: v[3]}
	}
	return f, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
