package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for suitability runs.
type Metrics struct {
	Runs           *prometheus.CounterVec // labels: outcome={complete,failed}
	RunDuration    prometheus.Histogram
	StageDuration  *prometheus.HistogramVec // labels: stage={align,reclassify,combine,rasterize,aggregate}
	CellsProcessed prometheus.Counter
	SuitableCells  prometheus.Counter
	ZonesSkipped   prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "runs_total",
			Help:      "Pipeline invocations by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "suitability",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline invocation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "suitability",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"stage"}),
		CellsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "cells_processed_total",
			Help:      "Reference grid cells evaluated.",
		}),
		SuitableCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "suitable_cells_total",
			Help:      "Cells meeting every criterion.",
		}),
		ZonesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "zones_skipped_total",
			Help:      "Zones excluded from the result table for missing or invalid attributes.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry. Call it once per process.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.Runs, m.RunDuration, m.StageDuration, m.CellsProcessed, m.SuitableCells, m.ZonesSkipped)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
