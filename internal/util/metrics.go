package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_passes_total",
		Help: "Total number of sync passes started",
	})

	SyncPassFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pass_failures_total",
		Help: "Total number of failed sync sub-operations",
	}, []string{"phase"})

	SyncTriggersDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_triggers_dropped_total",
		Help: "Total number of sync triggers dropped because a pass was in flight",
	})

	OrdersPushedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_pushed_total",
		Help: "Total number of order upserts pushed, by outcome",
	}, []string{"outcome"})

	OrdersPulledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_pulled_total",
		Help: "Total number of remote order records merged locally",
	})

	OrdersPullSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_pull_skipped_total",
		Help: "Total number of remote order records not merged, by reason",
	}, []string{"reason"})

	TombstonesAckedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tombstones_acked_total",
		Help: "Total number of tombstones acknowledged by the remote authority",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_reservations_failed_total",
		Help: "Total number of failed warehouse reservations",
	}, []string{"reason"})

	PushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_push_latency_seconds",
		Help:    "Latency of the push phase of a sync pass",
		Buckets: prometheus.DefBuckets,
	})

	PullLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_pull_latency_seconds",
		Help:    "Latency of the pull phase of a sync pass",
		Buckets: prometheus.DefBuckets,
	})

	WarehouseSnapshotSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warehouse_snapshot_items",
		Help: "Number of warehouse items in the last pulled snapshot",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
