// Package telemetry exposes the engine's own operational counters.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters incremented by monitor runs
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RecommendationsTotal *prometheus.CounterVec
	RunErrors            prometheus.Counter
}

// New registers the metricwatch counters on the given registry; a nil
// registry uses the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metricwatch_runs_total",
			Help: "Completed monitor runs by terminal status",
		}, []string{"status"}),
		RecommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metricwatch_recommendations_total",
			Help: "Recommendations emitted by kind",
		}, []string{"kind"}),
		RunErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "metricwatch_run_errors_total",
			Help: "Monitor runs aborted by storage or configuration errors",
		}),
	}
}

// Handler serves the default registry in the standard exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}
