package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_system_goroutines",
		Help: "Number of goroutines",
	})

	// Pipeline metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvas_stage_duration_seconds",
			Help:    "Time spent in each extraction stage",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
		[]string{"stage"},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_extractions_total",
			Help: "Total number of extraction runs",
		},
		[]string{"status"},
	)

	ComponentsByRole = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_components_total",
			Help: "Number of components emitted, by role",
		},
		[]string{"role"},
	)

	WidgetDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_widget_detections_total",
			Help: "Number of widgets detected, by type and method",
		},
		[]string{"widget_type", "method"},
	)

	TokenReduction = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_token_reduction_percent",
		Help:    "Token reduction achieved by the compact rendering",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// Worker metrics
	WorkerPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_worker_pending_requests",
		Help: "Number of extraction requests waiting for the worker",
	})

	WorkerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_worker_requests_total",
			Help: "Worker requests by outcome",
		},
		[]string{"outcome"},
	)

	EnhancerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_enhancer_calls_total",
			Help: "Semantic enhancer calls by outcome",
		},
		[]string{"outcome"},
	)

	// Graph metrics
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "canvas_graph_nodes",
			Help: "Number of component nodes in the exported graph",
		},
		[]string{"role"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "canvas_graph_edges",
			Help: "Number of relationship edges in the exported graph",
		},
		[]string{"relationship"},
	)
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
