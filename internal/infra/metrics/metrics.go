// Package metrics はPrometheusのメトリクス
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// スライス待ちで監視中のファイル数
	FilesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_files_pending",
			Help: "Number of files watched by the reconciler",
		},
	)

	FilesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_files_resolved_total",
			Help: "Total number of slicing results written",
		},
		[]string{"status"},
	)

	SlicerPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_slicer_polls_total",
			Help: "Total number of slicing status queries",
		},
		[]string{"result"},
	)

	SlicerDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_slicer_dispatches_total",
			Help: "Total number of slicing job submissions",
		},
		[]string{"outcome"},
	)

	ReconcileCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_reconcile_cycle_duration_seconds",
			Help:    "Duration of one reconciler cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts",
		},
		[]string{"result"},
	)

	OrderStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_status_changes_total",
			Help: "Total number of order status changes by target status",
		},
		[]string{"status"},
	)

	PaymentEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_events_total",
			Help: "Total number of payment webhook events",
		},
		[]string{"type"},
	)
)
