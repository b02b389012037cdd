package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

var (
	// MessagesPublished counts messages that were stored and fanned out.
	MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_published_total",
		Help:      "Messages persisted and broadcast to a room.",
	})

	// PersistenceFailures counts publishes aborted because the save failed.
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persistence_failures_total",
		Help:      "Publishes aborted by a failed durable save.",
	})

	// Deliveries counts per-member deliveries by result (ok|failed).
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Per-member live message deliveries.",
	}, []string{"result"})

	// CacheWarmups counts cold-start loads of room history from storage.
	CacheWarmups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_warmups_total",
		Help:      "Room history loads from storage, by result.",
	}, []string{"result"})

	// CacheEvictions counts idle rooms dropped from the recent-message cache.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Idle rooms evicted from the recent-message cache.",
	})

	// ActiveSessions tracks currently joined sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions currently joined to a room.",
	})

	// RateLimited counts rejected requests by scope (http|publish).
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limiter.",
	}, []string{"scope"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
