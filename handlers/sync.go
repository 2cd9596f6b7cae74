package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type syncRequest struct {
	District string `json:"district"`
	DaysBack int    `json:"daysBack"`
}

// TriggerSync runs one sync cycle and returns its result. An empty body uses the defaults.
func TriggerSync(c *gin.Context, syncer Syncer, defaults SyncDefaults, logger *zap.Logger) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		failure(c, http.StatusBadRequest, "Invalid sync request", err)
		return
	}
	if req.District == "" {
		req.District = defaults.District
	}
	if req.DaysBack <= 0 {
		req.DaysBack = defaults.DaysBack
	}

	logger.Info("Starting sync", zap.String("district", req.District), zap.Int("days_back", req.DaysBack))
	// a client disconnect must not cut the cycle short
	result, err := syncer.SyncIncidents(context.WithoutCancel(c.Request.Context()), req.District, req.DaysBack)
	if err != nil {
		logger.Error("Error syncing incidents", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to sync incidents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

// SyncIncident refreshes a single incident from the feed.
func SyncIncident(c *gin.Context, syncer Syncer, logger *zap.Logger) {
	id := c.Param("id")
	incident, err := syncer.SyncIncidentByID(c.Request.Context(), id)
	if err != nil {
		logger.Error("Error syncing incident", zap.String("incident_id", id), zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to sync incident", err)
		return
	}
	if incident == nil {
		failure(c, http.StatusNotFound, "Incident not found in feed", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"incident": incident,
	})
}

func GetSyncStats(c *gin.Context, syncer Syncer, logger *zap.Logger) {
	stats, err := syncer.Stats(c.Request.Context())
	if err != nil {
		logger.Error("Error getting sync stats", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to get sync stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}
