package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalatlas/vibe-etl/internal/domain"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	RecordsConsumed prometheus.Counter
	RecordsRejected *prometheus.CounterVec // label: reason
	EventsAccepted  prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Per-run aggregation metrics.
	CellsProduced           prometheus.Gauge
	BatchProcessingDuration prometheus.Histogram

	// Source and export metrics.
	SourceFiles *prometheus.CounterVec // label: outcome={success,error}
	Exports     *prometheus.CounterVec // labels: sink={file,s3,kafka}, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry. Rejection reasons are pre-registered so every series
// exists from the first scrape.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsConsumed,
		m.RecordsRejected,
		m.EventsAccepted,
		m.PipelineRunning,
		m.CellsProduced,
		m.BatchProcessingDuration,
		m.SourceFiles,
		m.Exports,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	m := &Metrics{
		RecordsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibe_etl",
			Name:      "records_consumed_total",
			Help:      "Total raw GKG records read from the source.",
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibe_etl",
			Name:      "records_rejected_total",
			Help:      "Records rejected during parsing, by reason.",
		}, []string{"reason"}),
		EventsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibe_etl",
			Name:      "events_accepted_total",
			Help:      "Records that parsed into valid events.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibe_etl",
			Name:      "pipeline_running",
			Help:      "1 while a batch run is active, 0 otherwise.",
		}),
		CellsProduced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibe_etl",
			Name:      "cells_produced",
			Help:      "Spatial cells produced by the most recent run.",
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vibe_etl",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete fetch-parse-aggregate-export run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		SourceFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibe_etl",
			Name:      "source_files_total",
			Help:      "GKG source file downloads by outcome.",
		}, []string{"outcome"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibe_etl",
			Name:      "exports_total",
			Help:      "Export attempts by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}

	for _, reason := range domain.RejectReasons() {
		m.RecordsRejected.WithLabelValues(string(reason))
	}

	return m
}
