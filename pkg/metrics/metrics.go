// Package metrics exposes Prometheus collectors fed by pipeline lifecycle
// hooks and by the dispatcher.
package metrics

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups every conductor metric.
type Collectors struct {
	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	Dispatches     *prometheus.CounterVec
	ActiveSessions prometheus.GaugeFunc
}

// New creates the collectors and registers them with reg. activeSessions is
// sampled on every scrape; it may be nil.
func New(reg prometheus.Registerer, activeSessions func() int) *Collectors {
	c := &Collectors{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_pipeline_runs_total",
				Help: "Pipeline runs by pipeline and outcome",
			},
			[]string{"pipeline", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_pipeline_run_duration_seconds",
				Help:    "Duration of pipeline runs",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"pipeline"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"pipeline", "stage", "status"},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_dispatches_total",
				Help: "Input dispatches by input and result (accepted or the error kind)",
			},
			[]string{"input", "result"},
		),
	}
	collectors := []prometheus.Collector{c.Runs, c.RunDuration, c.StageDuration, c.Dispatches}
	if activeSessions != nil {
		c.ActiveSessions = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "conductor_active_sessions",
				Help: "Sessions currently registered under an origin input",
			},
			func() float64 { return float64(activeSessions()) },
		)
		collectors = append(collectors, c.ActiveSessions)
	}
	reg.MustRegister(collectors...)
	return c
}

// Hooks returns lifecycle hooks recording run and stage metrics.
func (c *Collectors) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			c.Runs.WithLabelValues(e.Pipeline, status(e.Err)).Inc()
			c.RunDuration.WithLabelValues(e.Pipeline).Observe(e.Duration.Seconds())
		},
		OnStageEnd: func(ctx context.Context, e *domain.StageEvent) {
			c.StageDuration.WithLabelValues(e.Pipeline, e.Stage, status(e.Err)).Observe(e.Duration.Seconds())
		},
	}
}

// Dispatched records the outcome of one dispatch. A nil err counts as accepted.
func (c *Collectors) Dispatched(input string, err error) {
	result := "accepted"
	if err != nil {
		result = string(domain.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	c.Dispatches.WithLabelValues(input, result).Inc()
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "finished"
}
