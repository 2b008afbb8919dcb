package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlake_pipeline_turns_total",
			Help: "Total number of pipeline turns by route and outcome",
		},
		[]string{"route", "outcome"},
	)

	oracleCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindlake_pipeline_oracle_call_duration_seconds",
			Help:    "Duration of oracle calls by pipeline stage",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "status"},
	)

	rejectedQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindlake_pipeline_rejected_queries_total",
			Help: "Total number of generated queries rejected by the guard",
		},
	)

	figuresProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlake_pipeline_figures_total",
			Help: "Total number of figures produced by kind",
		},
		[]string{"kind"},
	)

	sandboxFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindlake_pipeline_visualization_failures_total",
			Help: "Total number of visualization attempts that produced no figure",
		},
		[]string{"reason"},
	)
)
