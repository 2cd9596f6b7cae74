package handlers

import (
	"errors"
	"go-pulsemap/summarization"
	"go-pulsemap/types"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetThread returns every incident in a thread, oldest first, with the thread's update log.
func GetThread(c *gin.Context, store IncidentReader, logger *zap.Logger) {
	threadID := c.Param("id")
	incidents, updates, ok := loadThread(c, store, logger, threadID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"threadId":  threadID,
		"incidents": incidents,
		"updates":   updates,
	})
}

// GetThreadSummary asks the summarizer for a short narrative of a thread.
func GetThreadSummary(c *gin.Context, store IncidentReader, summarizer ThreadSummarizer, logger *zap.Logger) {
	if summarizer == nil {
		failure(c, http.StatusServiceUnavailable, "Summaries are not configured", nil)
		return
	}

	threadID := c.Param("id")
	incidents, updates, ok := loadThread(c, store, logger, threadID)
	if !ok {
		return
	}

	summary, err := summarizer.SummarizeThread(c.Request.Context(), incidents, updates)
	if errors.Is(err, summarization.ErrNoAPIKey) {
		failure(c, http.StatusServiceUnavailable, "Summaries are not configured", nil)
		return
	}
	if err != nil {
		logger.Error("Thread summary failed", zap.String("thread_id", threadID), zap.Error(err))
		failure(c, http.StatusBadGateway, "Failed to summarize thread", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"threadId": threadID,
		"summary":  summary,
	})
}

func loadThread(c *gin.Context, store IncidentReader, logger *zap.Logger, threadID string) ([]types.EnrichedIncident, []types.IncidentUpdate, bool) {
	ctx := c.Request.Context()
	incidents, err := store.GetByThread(ctx, threadID)
	if err != nil {
		logger.Error("Failed to load thread", zap.String("thread_id", threadID), zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to fetch thread", err)
		return nil, nil, false
	}
	if len(incidents) == 0 {
		failure(c, http.StatusNotFound, "Thread not found", nil)
		return nil, nil, false
	}

	updates, err := store.GetThreadUpdates(ctx, threadID)
	if err != nil {
		logger.Error("Failed to load thread updates", zap.String("thread_id", threadID), zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to fetch thread", err)
		return nil, nil, false
	}
	if updates == nil {
		updates = []types.IncidentUpdate{}
	}
	return incidents, updates, true
}
