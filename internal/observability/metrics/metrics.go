// Package metrics provides Prometheus instrumentation for sitelaunch runs.
//
// A run is a short-lived process, so metrics are not scraped over HTTP.
// They are written once per run to a node-exporter textfile collector file.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes used as the status label
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var (
	enabled  bool
	registry *prometheus.Registry

	// Pipeline stage metrics
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	// Run outcome metrics
	runSuccess   prometheus.Gauge
	runTimestamp prometheus.Gauge
)

// Init initializes the metrics system. Each call starts a fresh registry.
func Init(enabledFlag bool) {
	enabled = enabledFlag
	if !enabled {
		registry = nil
		return
	}

	registry = prometheus.NewRegistry()
	factory := promauto.With(registry)

	stageTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitelaunch_stage_total",
			Help: "Pipeline stages by outcome",
		},
		[]string{"stage", "status"},
	)

	stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitelaunch_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	runSuccess = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sitelaunch_run_success",
		Help: "1 if the last run succeeded, 0 otherwise",
	})

	runTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sitelaunch_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// Registry returns the registry metrics are collected in, or nil when disabled.
func Registry() *prometheus.Registry {
	return registry
}

// StageObserved records one pipeline stage. Skipped stages carry no duration.
func StageObserved(stage, status string, d time.Duration) {
	if !enabled {
		return
	}
	stageTotal.WithLabelValues(stage, status).Inc()
	if status != StatusSkipped {
		stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// RunFinished records the outcome of the whole run.
func RunFinished(success bool, at time.Time) {
	if !enabled {
		return
	}
	if success {
		runSuccess.Set(1)
	} else {
		runSuccess.Set(0)
	}
	runTimestamp.Set(float64(at.Unix()))
}
