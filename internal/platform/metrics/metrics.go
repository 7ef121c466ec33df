// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the case analysis pipeline.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	Transcriptions   *prometheus.CounterVec
}

// New creates a Metrics with its own registry, so tests can construct
// independent instances without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecare_analyses_total",
			Help: "Case analyses by terminal outcome.",
		}, []string{"status"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "casecare_analysis_duration_seconds",
			Help:    "Wall-clock duration of a background case analysis.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecare_transcriptions_total",
			Help: "Audio transcription requests by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.AnalysesTotal, m.AnalysisDuration, m.Transcriptions)
	return m
}

// Handler returns an echo handler serving the Prometheus text exposition.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
