package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Deletion subsystem metrics
var (
	// DeletionRequestsTotal counts deletion requests by final result
	DeletionRequestsTotal *prometheus.CounterVec

	// DeletionDuration tracks how long a whole strategy chain takes
	DeletionDuration prometheus.Histogram

	// StrategyAttemptsTotal counts strategy attempts by strategy and status
	StrategyAttemptsTotal *prometheus.CounterVec

	// FileInfoRequestsTotal counts metadata queries by result
	FileInfoRequestsTotal *prometheus.CounterVec
)

func initDeletionMetrics() {
	DeletionRequestsTotal = NewCounterVec(
		"mediareaper_deletion_requests_total",
		"Total deletion requests by result.",
		[]string{"deleted"},
	)

	DeletionDuration = NewDurationHistogram(
		"mediareaper_deletion_duration_seconds",
		"Duration of a full deletion request in seconds.",
		RequestBuckets,
	)

	StrategyAttemptsTotal = NewCounterVec(
		"mediareaper_strategy_attempts_total",
		"Deletion strategy attempts by strategy and status.",
		[]string{"strategy", "status"},
	)

	FileInfoRequestsTotal = NewCounterVec(
		"mediareaper_file_info_requests_total",
		"File metadata queries by result (exists, missing, error).",
		[]string{"result"},
	)
}

func registerDeletionMetrics() {
	prometheus.MustRegister(DeletionRequestsTotal)
	prometheus.MustRegister(DeletionDuration)
	prometheus.MustRegister(StrategyAttemptsTotal)
	prometheus.MustRegister(FileInfoRequestsTotal)
}

// RecordDeletion records one finished deletion request
func RecordDeletion(deleted bool, durationSeconds float64) {
	DeletionRequestsTotal.WithLabelValues(strconv.FormatBool(deleted)).Inc()
	DeletionDuration.Observe(durationSeconds)
}

// RecordStrategyAttempt records one strategy attempt
func RecordStrategyAttempt(strategy, status string) {
	StrategyAttemptsTotal.WithLabelValues(strategy, status).Inc()
}

// RecordFileInfo records one metadata query. No-op before Init.
func RecordFileInfo(result string) {
	if FileInfoRequestsTotal == nil {
		return
	}
	FileInfoRequestsTotal.WithLabelValues(result).Inc()
}
