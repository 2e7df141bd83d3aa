// Package metrics holds the Prometheus collectors for change detection and
// scan dispatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Change detection metrics
var (
	ChangeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexscan_change_events_total",
			Help: "Total number of file change events received from the watch backend",
		},
		[]string{"kind"},
	)

	ChangeEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexscan_change_events_dropped_total",
			Help: "Change events dropped because the event queue was full",
		},
	)

	WatchActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plexscan_watch_active",
			Help: "Whether the watch backend is active (1 = watching, 0 = sweep only)",
		},
	)

	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexscan_sweeps_total",
			Help: "Total number of periodic directory sweeps",
		},
	)

	SweepFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plexscan_sweep_files",
			Help: "Number of files found by the last sweep",
		},
	)
)

// Scan dispatch metrics
var (
	ScanRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexscan_scan_requests_total",
			Help: "Total number of scan triggers by result",
		},
		[]string{"result"}, // "success", "skipped", "failure"
	)

	ScanPathsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexscan_scan_paths_total",
			Help: "Total number of paths sent to Plex in refresh requests",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plexscan_scan_duration_seconds",
			Help:    "Duration of Plex refresh requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)
