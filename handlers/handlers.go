package handlers

import (
	"context"
	"go-pulsemap/types"

	"github.com/gin-gonic/gin"
)

// IncidentReader is the read side of db.Store used by the query endpoints.
type IncidentReader interface {
	ListIncidents(ctx context.Context, filter types.IncidentFilter) ([]types.EnrichedIncident, error)
	GetByThread(ctx context.Context, threadID string) ([]types.EnrichedIncident, error)
	GetThreadUpdates(ctx context.Context, threadID string) ([]types.IncidentUpdate, error)
	GetStats(ctx context.Context) (types.Stats, error)
	Ping(ctx context.Context) error
}

// Syncer is the part of processor.Syncer exposed over HTTP.
type Syncer interface {
	SyncIncidents(ctx context.Context, district string, daysBack int) (types.SyncResult, error)
	SyncIncidentByID(ctx context.Context, id string) (*types.EnrichedIncident, error)
	Stats(ctx context.Context) (types.SyncStats, error)
}

type FeedChecker interface {
	HealthCheck(ctx context.Context) bool
}

type ThreadSummarizer interface {
	SummarizeThread(ctx context.Context, incidents []types.EnrichedIncident, updates []types.IncidentUpdate) (string, error)
}

type ReverseGeocoder interface {
	Reverse(ctx context.Context, c types.Coordinates) (string, error)
}

// SyncDefaults fill in a trigger request that omits district or daysBack.
type SyncDefaults struct {
	District string
	DaysBack int
}

func failure(c *gin.Context, status int, msg string, err error) {
	body := gin.H{"success": false, "error": msg}
	if err != nil {
		body["message"] = err.Error()
	}
	c.JSON(status, body)
}
