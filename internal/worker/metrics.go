package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	runsTotal            *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	activeRuns           prometheus.Gauge
	staleRunsTotal       prometheus.Counter
	webhookFailuresTotal prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shrinkit_worker_runs_total",
			Help: "Processing runs by background removal flag and final state.",
		}, []string{"remove_background", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrinkit_worker_run_duration_seconds",
			Help:    "Wall time of each processing run.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"remove_background", "state"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shrinkit_worker_active_runs",
			Help: "Runs currently holding a worker slot.",
		}),
		staleRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shrinkit_worker_stale_runs_total",
			Help: "Tasks dropped because their run was no longer current.",
		}),
		webhookFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shrinkit_worker_webhook_failures_total",
			Help: "Webhook notifications that could not be delivered.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shrinkit_usage_pixels_processed_total",
			Help: "Source pixels read by successful runs.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shrinkit_usage_bytes_saved_total",
			Help: "Bytes saved by successful runs relative to their source.",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.activeRuns,
		m.staleRunsTotal,
		m.webhookFailuresTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
