// Package metrics exposes prometheus collectors for the import pipeline.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smart_import"

type Metrics struct {
	analyses       *prometheus.CounterVec
	rows           *prometheus.CounterVec
	confidence     prometheus.Histogram
	batchDurations *prometheus.HistogramVec
	sessionsActive prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Uploaded files analyzed, by result.",
		}, []string{"result"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Confirmed rows, by outcome.",
		}, []string{"outcome"}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_confidence",
			Help:      "Overall column detection confidence per analyzed file.",
			Buckets:   []float64{0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		batchDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Ledger batch transaction latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Import sessions held in memory.",
		}),
	}
}

// NewRegistry returns a registry with the process and Go collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Analysis records one analyze call. result is "ok" or an error kind.
func (m *Metrics) Analysis(result string, confidence float64) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(result).Inc()
	if result == "ok" {
		m.confidence.Observe(confidence)
	}
}

// Rows records the counts of a confirmed import.
func (m *Metrics) Rows(imported, duplicates, failed int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues("imported").Add(float64(imported))
	m.rows.WithLabelValues("duplicate").Add(float64(duplicates))
	m.rows.WithLabelValues("failed").Add(float64(failed))
}

// Batch records one batch transaction.
func (m *Metrics) Batch(_ int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "committed"
	if err != nil {
		status = "failed"
	}
	m.batchDurations.WithLabelValues(status).Observe(elapsed.Seconds())
}

// SessionsActive sets the live session gauge.
func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
