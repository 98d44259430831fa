// Package metrics exposes the pipeline counters scraped from the
// webservice /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsImported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_records_imported_total",
		Help: "Raw records successfully decomposed into the model",
	}, []string{"kind"})
	RecordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_records_skipped_total",
		Help: "Raw records skipped during import by error class",
	}, []string{"kind", "reason"})
	SolverAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_solver_attempts_total",
		Help: "Solver attempts by mode, algorithm and outcome",
	}, []string{"mode", "algorithm", "outcome"})
	ScenarioRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_scenario_runs_total",
		Help: "Scenario studies by outcome",
	}, []string{"outcome"})
	ModelBuses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridcore_model_buses",
		Help: "Buses in the validated base network",
	})
	ModelLines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridcore_model_lines",
		Help: "Lines in the validated base network",
	})
)

func init() {
	prometheus.MustRegister(RecordsImported)
	prometheus.MustRegister(RecordsSkipped)
	prometheus.MustRegister(SolverAttempts)
	prometheus.MustRegister(ScenarioRuns)
	prometheus.MustRegister(ModelBuses)
	prometheus.MustRegister(ModelLines)
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
