// Package metrics holds the prometheus collectors exported at /admin/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	Registry = prometheus.NewRegistry()

	CollectionWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "collection_writes_total",
		Help:      "Documents written per collection and operation.",
	}, []string{"collection", "op"})

	LiveQueries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "convodb",
		Name:      "live_queries",
		Help:      "Registered change feed observers per collection.",
	}, []string{"collection"})

	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "convodb",
		Name:      "sessions",
		Help:      "Open publish sessions.",
	})

	Subscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "convodb",
		Name:      "subscriptions",
		Help:      "Active subscriptions per publication.",
	}, []string{"publication"})

	PublishedDocs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "convodb",
		Name:      "published_documents",
		Help:      "Documents currently visible across all sessions.",
	})

	ClientEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "client_events_total",
		Help:      "Document events delivered to clients.",
	}, []string{"kind"})

	CascadeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "convodb",
		Name:      "message_cascade_seconds",
		Help:      "Time spent in the post-insert unread cascade.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	UnreadMarked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "participants_marked_unread_total",
		Help:      "Participant records flipped to unread by message inserts.",
	})

	PresenceSweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "presence_sweeps_total",
		Help:      "Presence sweep runs by outcome.",
	}, []string{"outcome"})

	PresenceCleared = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "presence_cleared_total",
		Help:      "Stale observing entries and typing flags cleared by sweeps.",
	})

	LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "convodb",
		Name:      "live_connections",
		Help:      "Open websocket connections.",
	})

	LiveDisconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "live_disconnects_total",
		Help:      "Websocket connections closed, by reason.",
	}, []string{"reason"})

	LiveBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "live_backpressure_total",
		Help:      "Frames that waited for a full outbound queue to drain.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convodb",
		Name:      "http_requests_total",
		Help:      "REST requests by method and status class.",
	}, []string{"method", "status"})
)

func init() {
	Registry.MustRegister(
		CollectionWrites,
		LiveQueries,
		Sessions,
		Subscriptions,
		PublishedDocs,
		ClientEvents,
		CascadeDuration,
		UnreadMarked,
		PresenceSweeps,
		PresenceCleared,
		LiveConnections,
		LiveDisconnects,
		LiveBackpressure,
		HTTPRequests,
		collectors.NewGoCollector(),
	)
}
