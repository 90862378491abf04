package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	initOnce    sync.Once
	serverMutex sync.Mutex
	currentSrv  *http.Server

	// Global health checker instance
	globalHealthChecker *HealthChecker
	healthMutex         sync.RWMutex
)

// Init initializes all metrics subsystems and registers them with Prometheus.
// Safe to call multiple times.
func Init() {
	initOnce.Do(func() {
		initDeletionMetrics()
		initIndexMetrics()
		initAPIMetrics()
		initHealthMetrics()

		registerDeletionMetrics()
		registerIndexMetrics()
		registerAPIMetrics()
		registerHealthMetrics()

		// So the series show up in /metrics before the first maintenance run
		MaintenanceLastRunTimestamp.Set(0)
		IndexEntries.Set(0)
	})
}

// Handler serves /metrics and /health
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	hc := GetHealthChecker()
	if hc == nil {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "healthy": true})
		return
	}

	components := make(map[string]bool)
	for name, c := range hc.GetHealth() {
		components[name] = c.Healthy
	}

	status, code := "ok", http.StatusOK
	if !hc.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         status,
		"healthy":        code == http.StatusOK,
		"components":     components,
		"uptime_seconds": int64(hc.Uptime().Seconds()),
	})
}

// StartServer starts the metrics HTTP server on addr
func StartServer(addr string, log *logrus.Entry) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		log.WithField("addr", currentSrv.Addr).Warn("metrics server already running")
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	currentSrv = srv

	go func() {
		log.WithField("addr", addr).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server error")
			ErrorsTotal.Inc()
		}
	}()
}

// Shutdown gracefully shuts down the metrics server and the health checker
func Shutdown(ctx context.Context, log *logrus.Entry) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	healthMutex.Lock()
	if globalHealthChecker != nil {
		globalHealthChecker.Stop()
		globalHealthChecker = nil
	}
	healthMutex.Unlock()

	if currentSrv == nil {
		return
	}

	if err := currentSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("metrics server shutdown error")
		ErrorsTotal.Inc()
	}
	currentSrv = nil
}

// SetHealthChecker sets the global health checker instance
func SetHealthChecker(hc *HealthChecker) {
	healthMutex.Lock()
	defer healthMutex.Unlock()
	globalHealthChecker = hc
}

// GetHealthChecker returns the global health checker instance
func GetHealthChecker() *HealthChecker {
	healthMutex.RLock()
	defer healthMutex.RUnlock()
	return globalHealthChecker
}
