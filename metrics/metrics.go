// Package metrics holds the Prometheus instruments shared by the sync pipeline.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulsemap"

type Metrics struct {
	SyncCycles         *prometheus.CounterVec
	SyncDuration       prometheus.Histogram
	IncidentsProcessed prometheus.Counter
	IncidentsFailed    prometheus.Counter
	FeedFetches        *prometheus.CounterVec
	GeocodeLookups     *prometheus.CounterVec
	RateLimitWait      prometheus.Histogram
	BacklogGeocoded    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome (completed, skipped, failed).",
		}, []string{"outcome"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of completed sync cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		IncidentsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_processed_total",
			Help:      "Incidents persisted by the sync pipeline.",
		}),
		IncidentsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_failed_total",
			Help:      "Incidents that failed inside the per-incident pipeline.",
		}),
		FeedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed fetches by origin (live, mock, fallback, error).",
		}, []string{"origin"}),
		GeocodeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_lookups_total",
			Help:      "Location lookups by result (hit, found, not_found, error).",
		}, []string{"result"}),
		RateLimitWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_rate_limit_wait_seconds",
			Help:      "Time spent waiting on the geocoder rate gate.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		BacklogGeocoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backlog_geocoded_total",
			Help:      "Incidents resolved by the backlog sweep.",
		}),
	}
}

func (m *Metrics) SyncCompleted(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncCycles.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.SyncDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncidentDone(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.IncidentsProcessed.Inc()
	} else {
		m.IncidentsFailed.Inc()
	}
}

func (m *Metrics) FeedFetched(origin string) {
	if m == nil {
		return
	}
	m.FeedFetches.WithLabelValues(origin).Inc()
}

func (m *Metrics) GeocodeLookup(result string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimitWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}

func (m *Metrics) BacklogResolved(n int) {
	if m == nil {
		return
	}
	m.BacklogGeocoded.Add(float64(n))
}
