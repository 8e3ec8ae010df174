package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marksync"

// Fold sources.
const (
	SourceLocal     = "local"
	SourceBroadcast = "broadcast"
	SourceFeed      = "feed"
	SourceLoad      = "load"
)

var (
	// Reconciler
	FoldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "folds_total",
			Help:      "Folds applied to view lists by source, type and whether the entries changed.",
		},
		[]string{"source", "type", "changed"},
	)

	// Broadcast channel
	BroadcastPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publish_failures_total",
			Help:      "Envelopes that could not be published to sibling tabs.",
		},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Received messages ignored by reason.",
		},
		[]string{"reason"},
	)

	// Change feed
	FeedSubscribeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribe_failures_total",
			Help:      "Change feed subscriptions that could not be established.",
		},
	)

	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Row change notifications received by event.",
		},
		[]string{"event"},
	)

	// Mutations
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Create and delete mutations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "duration_seconds",
			Help:      "Durable call latency per mutation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Views
	ViewsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "views_open",
			Help:      "Currently open tab views.",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Changed renders a fold outcome as a label value.
func Changed(changed bool) string {
	if changed {
		return "true"
	}
	return "false"
}
