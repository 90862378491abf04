package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Media index and maintenance metrics
var (
	// ErrorsTotal tracks errors in background work (scans, pruning, health checks)
	ErrorsTotal prometheus.Counter

	// IndexEntries tracks the number of entries in the media index
	IndexEntries prometheus.Gauge

	// IndexedFilesTotal counts files added or refreshed by scans, per root
	IndexedFilesTotal *prometheus.CounterVec

	// IndexPrunedTotal counts stale index entries removed
	IndexPrunedTotal prometheus.Counter

	// MaintenanceDuration tracks how long a maintenance run takes
	MaintenanceDuration prometheus.Histogram

	// MaintenanceLastRunTimestamp records Unix timestamp of the last maintenance run
	MaintenanceLastRunTimestamp prometheus.Gauge
)

func initIndexMetrics() {
	ErrorsTotal = NewCounter(
		"mediareaper_daemon_errors_total",
		"Total number of background errors encountered.",
	)

	IndexEntries = NewGauge(
		"mediareaper_index_entries",
		"Number of entries in the media index.",
	)

	IndexedFilesTotal = NewCounterVec(
		"mediareaper_index_scanned_files_total",
		"Files indexed by scans per root.",
		[]string{"root"},
	)

	IndexPrunedTotal = NewCounter(
		"mediareaper_index_pruned_total",
		"Stale media index entries removed.",
	)

	MaintenanceDuration = NewDurationHistogram(
		"mediareaper_maintenance_duration_seconds",
		"Duration of maintenance runs in seconds.",
		DurationBuckets,
	)

	MaintenanceLastRunTimestamp = NewGauge(
		"mediareaper_maintenance_last_run_timestamp",
		"Timestamp of the last maintenance run (Unix epoch seconds).",
	)
}

func registerIndexMetrics() {
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(IndexEntries)
	prometheus.MustRegister(IndexedFilesTotal)
	prometheus.MustRegister(IndexPrunedTotal)
	prometheus.MustRegister(MaintenanceDuration)
	prometheus.MustRegister(MaintenanceLastRunTimestamp)
}

// RecordMaintenanceRun sets the last run timestamp and observes the duration
func RecordMaintenanceRun(start time.Time) {
	MaintenanceLastRunTimestamp.Set(float64(time.Now().Unix()))
	MaintenanceDuration.Observe(time.Since(start).Seconds())
}
