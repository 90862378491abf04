package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsInit verifies that Init() is idempotent and registers metrics
func TestMetricsInit(t *testing.T) {
	Init()
	Init()
	Init()

	if DeletionRequestsTotal == nil {
		t.Error("DeletionRequestsTotal should be initialized")
	}
	if StrategyAttemptsTotal == nil {
		t.Error("StrategyAttemptsTotal should be initialized")
	}
	if IndexEntries == nil {
		t.Error("IndexEntries should be initialized")
	}
	if HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal should be initialized")
	}

	// Vec metrics only show up once a label set exists.
	RecordDeletion(true, 0.01)
	RecordStrategyAttempt("direct", "deleted")
	RecordFileInfo("exists")
	IndexedFilesTotal.WithLabelValues("/sdcard").Add(0)
	HTTPRequestsTotal.WithLabelValues("/api/v1/health", "GET", "200").Add(0)
	HTTPRequestDuration.WithLabelValues("/api/v1/health", "GET", "200").Observe(0)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := []string{
		"mediareaper_deletion_requests_total",
		"mediareaper_deletion_duration_seconds",
		"mediareaper_strategy_attempts_total",
		"mediareaper_file_info_requests_total",
		"mediareaper_daemon_errors_total",
		"mediareaper_index_entries",
		"mediareaper_index_scanned_files_total",
		"mediareaper_index_pruned_total",
		"mediareaper_maintenance_last_run_timestamp",
		"mediareaper_api_request_duration_seconds",
		"mediareaper_api_requests_total",
		"mediareaper_api_websocket_clients",
		"mediareaper_daemon_healthy",
	}

	found := make(map[string]bool)
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, expected := range expectedMetrics {
		if !found[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

func TestRecordDeletion(t *testing.T) {
	Init()

	before := testutil.ToFloat64(DeletionRequestsTotal.WithLabelValues("false"))
	RecordDeletion(false, 0.2)
	RecordDeletion(false, 0.1)
	if got := testutil.ToFloat64(DeletionRequestsTotal.WithLabelValues("false")); got != before+2 {
		t.Errorf("expected %v failed deletions, got %v", before+2, got)
	}

	before = testutil.ToFloat64(StrategyAttemptsTotal.WithLabelValues("shell", "error"))
	RecordStrategyAttempt("shell", "error")
	if got := testutil.ToFloat64(StrategyAttemptsTotal.WithLabelValues("shell", "error")); got != before+1 {
		t.Errorf("expected %v shell errors, got %v", before+1, got)
	}
}

func TestRecordMaintenanceRun(t *testing.T) {
	Init()

	RecordMaintenanceRun(time.Now().Add(-time.Second))
	if got := testutil.ToFloat64(MaintenanceLastRunTimestamp); got <= 0 {
		t.Errorf("expected last run timestamp to be set, got %v", got)
	}
}

// TestStandardBuckets verifies that standard bucket definitions are ascending
func TestStandardBuckets(t *testing.T) {
	for name, buckets := range map[string][]float64{
		"RequestBuckets":  RequestBuckets,
		"DurationBuckets": DurationBuckets,
		"APIBuckets":      APIBuckets,
	} {
		t.Run(name, func(t *testing.T) {
			for i := 1; i < len(buckets); i++ {
				if buckets[i] <= buckets[i-1] {
					t.Errorf("bucket[%d]=%v is not above bucket[%d]=%v", i, buckets[i], i-1, buckets[i-1])
				}
			}
		})
	}
}

func TestHealthChecker(t *testing.T) {
	Init()

	hc := NewHealthChecker(time.Hour)
	failing := errors.New("database locked")
	var dbErr error

	hc.RegisterComponent("database", func(ctx context.Context) error { return dbErr }, 0)
	hc.RegisterComponent("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, 10*time.Millisecond)

	hc.CheckNow()
	if hc.IsHealthy() {
		t.Fatal("expected checker to be unhealthy after a timeout")
	}
	if got := hc.GetHealth()["slow"].LastError; got != errHealthCheckTimeout.Error() {
		t.Errorf("expected timeout error, got %q", got)
	}

	hc.RegisterComponent("slow", func(ctx context.Context) error { return nil }, 0)
	dbErr = failing
	hc.CheckNow()
	health := hc.GetHealth()
	if health["database"].Healthy {
		t.Error("database should be unhealthy")
	}
	if health["database"].FailureCount != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", health["database"].FailureCount)
	}

	dbErr = nil
	hc.CheckNow()
	if !hc.IsHealthy() {
		t.Error("expected checker to recover")
	}
	if got := testutil.ToFloat64(ServiceHealthy); got != 1 {
		t.Errorf("expected overall health gauge 1, got %v", got)
	}

	hc.Start()
	hc.Stop()
	hc.Stop()
}

func TestHealthEndpoint(t *testing.T) {
	Init()

	hc := NewHealthChecker(time.Hour)
	hc.RegisterComponent("index", func(ctx context.Context) error { return errors.New("gone") }, 0)
	hc.CheckNow()
	SetHealthChecker(hc)
	defer SetHealthChecker(nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Components["index"] {
		t.Errorf("unexpected body: %+v", body)
	}
}
