package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes used as metric label values.
const (
	outcomeCompleted = "completed"
	outcomeRetried   = "retried"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

var (
	// attemptsTotal counts execution attempts by outcome.
	// Labels: "completed", "retried", "failed", "cancelled"
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calcsync_processor_attempts_total",
		Help: "Task execution attempts by outcome",
	}, []string{"outcome"})

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calcsync_processor_in_flight",
		Help: "Task executions currently running",
	})

	drainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calcsync_processor_drains_total",
		Help: "Completed queue drain passes",
	})
)
