package handlers

import (
	"fmt"
	"go-pulsemap/types"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusDown     = "down"
)

type healthChecks struct {
	Database bool `json:"database"`
	API      bool `json:"api"`
}

type healthResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Checks    healthChecks `json:"checks"`
	Stats     *types.Stats `json:"stats"`
	Errors    []string     `json:"errors"`
}

// Health reports "down" (503) when the store is unreachable, "degraded" (207) when
// only the feed is, and "healthy" (200) otherwise.
func Health(c *gin.Context, store IncidentReader, feed FeedChecker) {
	ctx := c.Request.Context()
	resp := healthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Errors:    []string{},
	}

	if err := store.Ping(ctx); err != nil {
		resp.Status = statusDown
		resp.Errors = append(resp.Errors, fmt.Sprintf("Database: %v", err))
	} else {
		resp.Checks.Database = true
	}

	resp.Checks.API = feed.HealthCheck(ctx)
	if !resp.Checks.API {
		if resp.Status == statusHealthy {
			resp.Status = statusDegraded
		}
		resp.Errors = append(resp.Errors, "Incident feed is not responding")
	}

	if resp.Checks.Database {
		if stats, err := store.GetStats(ctx); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Stats: %v", err))
		} else {
			resp.Stats = &stats
		}
	}

	code := http.StatusOK
	switch resp.Status {
	case statusDegraded:
		code = http.StatusMultiStatus
	case statusDown:
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
