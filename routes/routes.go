package routes

import (
	"go-pulsemap/handlers"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Store      handlers.IncidentReader
	Syncer     handlers.Syncer
	Feed       handlers.FeedChecker
	Geocoder   handlers.ReverseGeocoder
	Summarizer handlers.ThreadSummarizer
	Defaults   handlers.SyncDefaults
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer  prometheus.Gatherer
	ClientURL string
	Logger    *zap.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := gin.New()
	r.Use(corsMiddleware(d.ClientURL), gin.Recovery(), requestLogger(logger))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Hello, welcome to PulseMap!",
		})
	})

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			handlers.Health(c, d.Store, d.Feed)
		})
		api.GET("/incidents", func(c *gin.Context) {
			handlers.GetIncidents(c, d.Store, logger)
		})
		api.GET("/threads/:id", func(c *gin.Context) {
			handlers.GetThread(c, d.Store, logger)
		})
		api.GET("/threads/:id/summary", func(c *gin.Context) {
			handlers.GetThreadSummary(c, d.Store, d.Summarizer, logger)
		})
		api.GET("/sync", func(c *gin.Context) {
			handlers.GetSyncStats(c, d.Syncer, logger)
		})
		api.POST("/sync", func(c *gin.Context) {
			handlers.TriggerSync(c, d.Syncer, d.Defaults, logger)
		})
		api.POST("/sync/:id", func(c *gin.Context) {
			handlers.SyncIncident(c, d.Syncer, logger)
		})
		api.GET("/geocode/reverse", func(c *gin.Context) {
			handlers.ReverseGeocode(c, d.Geocoder, logger)
		})
	}

	return r
}
