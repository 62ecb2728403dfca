// Package metrics holds the Prometheus collectors for the reordering engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Move outcome labels.
const (
	OutcomeApplied    = "applied"
	OutcomeNoop       = "noop"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
	OutcomeDuplicate  = "duplicate"
)

var (
	// movesTotal counts moves by outcome.
	// Labels: outcome (applied, noop, rejected, rolled_back, duplicate)
	movesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kanflow",
		Subsystem: "moves",
		Name:      "total",
		Help:      "Moves handled by outcome",
	}, []string{"outcome"})

	// batchSize tracks how many items one move rewrites.
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kanflow",
		Subsystem: "moves",
		Name:      "batch_size",
		Help:      "Number of position updates per persisted batch",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
	})

	// reconcileLatency measures the backend round trip of one batch.
	// Labels: backend, status (ok, error)
	reconcileLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kanflow",
		Subsystem: "reconcile",
		Name:      "latency_seconds",
		Help:      "Backend batch persistence latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"backend", "status"})

	// resyncsTotal counts full board refreshes.
	// Labels: reason (stale, external, manual)
	resyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kanflow",
		Subsystem: "cache",
		Name:      "resyncs_total",
		Help:      "Full board refreshes from the backend of record",
	}, []string{"reason"})

	// aggregateLookups counts totals lookups by cache result.
	// Labels: result (hit, miss)
	aggregateLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kanflow",
		Subsystem: "aggregate",
		Name:      "lookups_total",
		Help:      "Group totals lookups by cache result",
	}, []string{"result"})

	// inFlight is the number of reconciliations currently awaiting the backend.
	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kanflow",
		Subsystem: "reconcile",
		Name:      "in_flight",
		Help:      "Reconciliations awaiting the backend of record",
	})
)

// RecordMove counts one move outcome.
func RecordMove(outcome string) {
	movesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBatch records the size of a persisted batch.
func ObserveBatch(size int) {
	batchSize.Observe(float64(size))
}

// ObserveReconcile records one backend round trip.
func ObserveReconcile(backend string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	reconcileLatency.WithLabelValues(backend, status).Observe(time.Since(started).Seconds())
}

// RecordResync counts one full refresh.
func RecordResync(reason string) {
	resyncsTotal.WithLabelValues(reason).Inc()
}

// RecordAggregateLookup counts one totals lookup.
func RecordAggregateLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	aggregateLookups.WithLabelValues(result).Inc()
}

// FlightStarted and FlightSettled track the in-flight gauge.
func FlightStarted() { inFlight.Inc() }
func FlightSettled() { inFlight.Dec() }
