// Package metrics exposes prometheus instrumentation for the mitigation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Calibration lookup outcomes.
const (
	LookupHit      = "hit"
	LookupMiss     = "miss"
	LookupMismatch = "qubit_mismatch"
	LookupError    = "error"
	LookupDisabled = "disabled"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	StageDuration       *prometheus.HistogramVec
	CalibrationLookups  *prometheus.CounterVec
	CalibrationRuns     prometheus.Counter
	UnfoldIterations    prometheus.Histogram
	UnfoldNotConverged  prometheus.Counter
	ClampedEstimates    prometheus.Counter
	HistogramsMitigated *prometheus.CounterVec
}

// New registers every collector with reg. Use prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qlbm_mitigation_stage_duration_seconds",
			Help:    "Duration of each mitigation stage",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 3600},
		}, []string{"stage"}),
		CalibrationLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qlbm_calibration_lookups_total",
			Help: "Calibration cache lookups by outcome",
		}, []string{"result"}),
		CalibrationRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "qlbm_calibration_experiments_total",
			Help: "Readout calibration experiments executed on a backend",
		}),
		UnfoldIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "qlbm_unfolding_iterations",
			Help:    "Iterations used by iterative Bayesian unfolding",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		UnfoldNotConverged: factory.NewCounter(prometheus.CounterOpts{
			Name: "qlbm_unfolding_not_converged_total",
			Help: "Unfolding runs that hit the iteration cap",
		}),
		ClampedEstimates: factory.NewCounter(prometheus.CounterOpts{
			Name: "qlbm_extrapolation_clamped_total",
			Help: "Zero-noise estimates clamped from negative to zero",
		}),
		HistogramsMitigated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qlbm_histograms_mitigated_total",
			Help: "Histograms returned by the pipeline, by label prefix",
		}, []string{"method"}),
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CalibrationLookup counts a cache lookup outcome.
func (m *Metrics) CalibrationLookup(result string) {
	if m == nil {
		return
	}
	m.CalibrationLookups.WithLabelValues(result).Inc()
}

// CalibrationRun counts a calibration experiment.
func (m *Metrics) CalibrationRun() {
	if m == nil {
		return
	}
	m.CalibrationRuns.Inc()
}

// Unfolded records one unfolding run.
func (m *Metrics) Unfolded(iterations int, converged bool) {
	if m == nil {
		return
	}
	m.UnfoldIterations.Observe(float64(iterations))
	if !converged {
		m.UnfoldNotConverged.Inc()
	}
}

// Clamped counts negative zero-noise estimates.
func (m *Metrics) Clamped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ClampedEstimates.Add(float64(n))
}

// Mitigated counts histograms produced by a method.
func (m *Metrics) Mitigated(method string, n int) {
	if m == nil {
		return
	}
	m.HistogramsMitigated.WithLabelValues(method).Add(float64(n))
}

// WriteTextfile dumps every metric in gatherer to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, gatherer)
}
