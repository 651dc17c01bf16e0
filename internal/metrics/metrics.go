// Package metrics defines the prometheus instruments for the recovery
// engine. The sink is write-only: nothing in the engine reads it back.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecoveryAttemptsTotal counts recovery operations by type and outcome
	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_attempts_total",
			Help: "Total number of recovery operations",
		},
		[]string{"recovery_type", "success"},
	)

	// AttestationsTotal counts guardian attestations by result
	AttestationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_attestations_total",
			Help: "Total number of guardian attestation attempts",
		},
		[]string{"result"},
	)

	// FragmentsProvided tracks how many attestations a recovery had
	// accumulated when an operation was attempted
	FragmentsProvided = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recovery_fragments_provided",
			Help:    "Attestations accumulated at the time of a recovery operation",
			Buckets: []float64{0, 1, 2, 3},
		},
		[]string{"recovery_type"},
	)

	// MirrorCallsTotal counts best-effort ledger mirror calls
	MirrorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_mirror_calls_total",
			Help: "Total number of ledger mirror calls",
		},
		[]string{"call", "status"},
	)

	// MirrorPayloadMismatchTotal counts completions where the mirror
	// returned a payload different from the database copy
	MirrorPayloadMismatchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_mirror_payload_mismatch_total",
			Help: "Completions where the mirrored payload differed from the stored payload",
		},
	)

	// TimeLockRejectionsTotal counts completion attempts blocked by the time-lock
	TimeLockRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_timelock_rejections_total",
			Help: "Completion attempts rejected because the time-lock had not expired",
		},
	)
)
