package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Component health metrics
var (
	// ServiceHealthy indicates overall daemon health status
	ServiceHealthy prometheus.Gauge

	// ServiceStartTime records daemon start timestamp
	ServiceStartTime prometheus.Gauge

	// ComponentHealthy tracks individual component health
	ComponentHealthy *prometheus.GaugeVec

	// HealthCheckDuration tracks health check execution time
	HealthCheckDuration *prometheus.HistogramVec

	// HealthCheckFailures counts consecutive failures per component
	HealthCheckFailures *prometheus.GaugeVec
)

var errHealthCheckTimeout = errors.New("health check timeout")

// CheckFunc returns nil when the component is working
type CheckFunc func(ctx context.Context) error

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name         string
	LastCheck    time.Time
	LastError    string
	Healthy      bool
	FailureCount int

	check   CheckFunc
	timeout time.Duration
}

// HealthChecker runs registered component checks on an interval
type HealthChecker struct {
	mu            sync.RWMutex
	startTime     time.Time
	components    map[string]*ComponentHealth
	checkInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	started       bool
	stopped       bool
}

func initHealthMetrics() {
	ServiceHealthy = NewGauge(
		"mediareaper_daemon_healthy",
		"Daemon health status (1=healthy, 0=unhealthy).",
	)

	ServiceStartTime = NewGauge(
		"mediareaper_daemon_start_timestamp_seconds",
		"Unix timestamp when daemon started.",
	)

	ComponentHealthy = NewGaugeVec(
		"mediareaper_component_healthy",
		"Individual component health status (1=healthy, 0=unhealthy).",
		[]string{"component"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediareaper_health_check_duration_seconds",
			Help:    "Time taken to execute health checks.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"component"},
	)

	HealthCheckFailures = NewGaugeVec(
		"mediareaper_health_check_failures_consecutive",
		"Consecutive health check failures per component.",
		[]string{"component"},
	)
}

func registerHealthMetrics() {
	prometheus.MustRegister(ServiceHealthy)
	prometheus.MustRegister(ServiceStartTime)
	prometheus.MustRegister(ComponentHealthy)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthCheckFailures)
}

// NewHealthChecker creates a new health checker with specified check interval.
// Init must have been called.
func NewHealthChecker(interval time.Duration) *HealthChecker {
	hc := &HealthChecker{
		startTime:     time.Now(),
		components:    make(map[string]*ComponentHealth),
		checkInterval: interval,
		stopCh:        make(chan struct{}),
	}

	ServiceStartTime.Set(float64(hc.startTime.Unix()))
	ServiceHealthy.Set(1)
	return hc
}

// RegisterComponent adds a component check. timeout 0 means no timeout.
func (hc *HealthChecker) RegisterComponent(name string, check CheckFunc, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = &ComponentHealth{
		Name:    name,
		Healthy: true,
		check:   check,
		timeout: timeout,
	}

	ComponentHealthy.WithLabelValues(name).Set(1)
	HealthCheckFailures.WithLabelValues(name).Set(0)
}

// Start begins periodic health checking
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = true
	hc.mu.Unlock()

	hc.wg.Add(1)
	go hc.loop()
}

// Stop halts health checking and waits for completion
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.started || hc.stopped {
		hc.mu.Unlock()
		return
	}
	hc.stopped = true
	hc.mu.Unlock()

	close(hc.stopCh)
	hc.wg.Wait()
}

func (hc *HealthChecker) loop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.CheckNow()

	for {
		select {
		case <-ticker.C:
			hc.CheckNow()
		case <-hc.stopCh:
			return
		}
	}
}

// CheckNow runs every registered check once
func (hc *HealthChecker) CheckNow() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	overall := true
	for name, comp := range hc.components {
		start := time.Now()
		err := runCheck(comp.check, comp.timeout)
		HealthCheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		comp.LastCheck = time.Now()

		if err != nil {
			comp.Healthy = false
			comp.FailureCount++
			comp.LastError = err.Error()
			overall = false

			ComponentHealthy.WithLabelValues(name).Set(0)
			HealthCheckFailures.WithLabelValues(name).Set(float64(comp.FailureCount))
			ErrorsTotal.Inc()
			continue
		}
		comp.Healthy = true
		comp.FailureCount = 0
		comp.LastError = ""
		ComponentHealthy.WithLabelValues(name).Set(1)
		HealthCheckFailures.WithLabelValues(name).Set(0)
	}

	if overall {
		ServiceHealthy.Set(1)
	} else {
		ServiceHealthy.Set(0)
	}
}

func runCheck(check CheckFunc, timeout time.Duration) error {
	ctx := context.Background()
	if timeout <= 0 {
		return check(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- check(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errHealthCheckTimeout
	}
}

// GetHealth returns a snapshot of every component
func (hc *HealthChecker) GetHealth() map[string]ComponentHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	health := make(map[string]ComponentHealth, len(hc.components))
	for name, comp := range hc.components {
		health[name] = *comp
	}
	return health
}

// IsHealthy returns true if all components are healthy
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	for _, comp := range hc.components {
		if !comp.Healthy {
			return false
		}
	}
	return true
}

// Uptime returns how long the checker has existed
func (hc *HealthChecker) Uptime() time.Duration {
	return time.Since(hc.startTime)
}
