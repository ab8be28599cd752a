package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes.
const (
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
	OutcomeNotified = "notified"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
)

var ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchtower_items_processed_total",
	Help: "Items that reached a terminal pipeline state",
}, []string{"platform", "group", "outcome"})

var FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchtower_fetch_errors_total",
	Help: "Source fetch failures by kind",
}, []string{"platform", "kind"})

var ClassifierCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchtower_classifier_calls_total",
	Help: "Classifier calls by operation and status",
}, []string{"operation", "status"})

var Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchtower_notifications_total",
	Help: "Notification attempts by kind and status",
}, []string{"kind", "status"})

var CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "watchtower_cycle_duration_seconds",
	Help:    "Duration of one check cycle",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
})

var CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "watchtower_cache_entries",
	Help: "Entries currently held by the dedup cache",
})

func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
