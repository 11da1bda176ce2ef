// Package metrics exposes Prometheus collectors for the engagement engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EngagementToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_engagement_toggles_total",
		Help: "Total engagement toggles committed",
	}, []string{"kind", "direction"})
	EngagementConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_engagement_conflicts_total",
		Help: "Toggles dropped because the relationship state already held at commit time",
	}, []string{"kind"})
	EngagementRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_engagement_rollbacks_total",
		Help: "Optimistic toggles rolled back after a failed batch",
	}, []string{"kind"})
	HydrationChunkFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twitter_hydration_chunk_failures_total",
		Help: "Failed membership-query chunks during batched hydration",
	})
	ReconcileUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_reconcile_updates_total",
		Help: "Counter fields repaired by backfill runs",
	}, []string{"entity"})
	RealtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twitter_realtime_dropped_updates_total",
		Help: "Realtime updates dropped on slow observer channels",
	})
	RealtimeSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "twitter_realtime_subscriptions",
		Help: "Live upstream store subscriptions",
	})
)

func init() {
	prometheus.MustRegister(
		EngagementToggles,
		EngagementConflicts,
		EngagementRollbacks,
		HydrationChunkFailures,
		ReconcileUpdates,
		RealtimeDropped,
		RealtimeSubscriptions,
	)
}

// StartServer serves /metrics on addr (e.g. ":9090") in the background.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() { _ = http.ListenAndServe(addr, mux) }()
}
