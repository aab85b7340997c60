// Package metrics provides Prometheus metrics for growth calculations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Function labels.
const (
	FunctionSDSCentile = "sds_centile"
	FunctionDecimalAge = "corrected_decimal_age"
)

// Metrics contains the calculation metrics.
type Metrics struct {
	CalculationsTotal *prometheus.CounterVec   // Calculations by function and outcome code
	UpstreamDuration  *prometheus.HistogramVec // Growth API round trip by reference
	CellsProjected    *prometheus.CounterVec   // Output cells returned by function and mode
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CalculationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "growthsheet_calculations_total",
			Help: "Total number of calculations by function and outcome",
		}, []string{"function", "outcome"}),

		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "growthsheet_upstream_request_duration_seconds",
			Help:    "Duration of growth API calls by reference",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"reference"}),

		CellsProjected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "growthsheet_cells_projected_total",
			Help: "Total number of output cells returned by function and mode",
		}, []string{"function", "mode"}),
	}
}

// RecordCalculation counts one finished calculation. outcome is "ok" or an error code.
func (m *Metrics) RecordCalculation(function, outcome string) {
	m.CalculationsTotal.WithLabelValues(function, outcome).Inc()
}

// ObserveUpstream records one growth API round trip.
func (m *Metrics) ObserveUpstream(reference string, durationSeconds float64) {
	m.UpstreamDuration.WithLabelValues(reference).Observe(durationSeconds)
}

// RecordCells counts the cells of a projected row.
func (m *Metrics) RecordCells(function, mode string, cells int) {
	m.CellsProjected.WithLabelValues(function, mode).Add(float64(cells))
}
