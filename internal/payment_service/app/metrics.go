package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autobus",
			Subsystem: "payments",
			Name:      "created_total",
			Help:      "Total number of payments created.",
		},
		[]string{"type"},
	)
	phaseAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autobus",
			Subsystem: "payments",
			Name:      "phase_attempts_total",
			Help:      "Total number of gateway phase attempts.",
		},
		[]string{"phase", "outcome"},
	)
	phaseDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autobus",
			Subsystem: "payments",
			Name:      "phase_duration_seconds",
			Help:      "Duration of one gateway phase attempt.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	transitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autobus",
			Subsystem: "payments",
			Name:      "transitions_total",
			Help:      "Total number of committed payment status transitions.",
		},
		[]string{"status"},
	)
	casConflictCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autobus",
			Subsystem: "payments",
			Name:      "cas_conflicts_total",
			Help:      "Status compare-and-set races lost to another worker.",
		},
	)
	reconciliationCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autobus",
			Subsystem: "payments",
			Name:      "reconciliation_required_total",
			Help:      "Payments whose reversal exhausted retries and need manual reconciliation.",
		},
	)
)
