package solver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "kinecalc"

// Metrics are the optimizer's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	// RunsTotal counts finished stages.
	// Labels: stage (strict, relaxed), outcome (success, infeasible, error)
	RunsTotal *prometheus.CounterVec

	// Iterations is the distribution of solver iterations per stage.
	// Labels: stage
	Iterations *prometheus.HistogramVec

	// EvaluationsTotal counts full sheet evaluations made by the optimizer.
	EvaluationsTotal prometheus.Counter

	// BestObjective is the objective of the last returned point.
	BestObjective prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "runs_total",
			Help:      "Optimizer stages run, by stage and outcome",
		}, []string{"stage", "outcome"}),

		Iterations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Solver iterations per stage",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		}, []string{"stage"}),

		EvaluationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "evaluations_total",
			Help:      "Sheet evaluations performed by the optimizer",
		}),

		BestObjective: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "best_objective",
			Help:      "Objective value of the most recently returned point",
		}),
	}
}

func (m *Metrics) observeRun(stage Stage, outcome string, iterations int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(stage), outcome).Inc()
	if outcome != "error" {
		m.Iterations.WithLabelValues(string(stage)).Observe(float64(iterations))
	}
}

func (m *Metrics) observeEvaluation() {
	if m == nil {
		return
	}
	m.EvaluationsTotal.Inc()
}

func (m *Metrics) observeBest(objective float64) {
	if m == nil {
		return
	}
	m.BestObjective.Set(objective)
}
