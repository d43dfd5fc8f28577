// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total requests by operation kind and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of gateway operations processed",
		},
		[]string{"kind", "status"},
	)

	// RequestDuration tracks request duration by operation kind.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~205s
		},
		[]string{"kind"},
	)

	// SessionPoolSize shows the configured pool size.
	SessionPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_session_pool_size",
			Help: "Configured browser session pool size",
		},
	)

	// SessionPoolAvailable shows idle sessions currently in the pool.
	SessionPoolAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_session_pool_available",
			Help: "Idle sessions available in the pool",
		},
	)

	// SessionLeasesAcquired counts total SessionPool.Lease acquisitions.
	SessionLeasesAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_session_leases_acquired_total",
			Help: "Total session leases acquired from the pool",
		},
	)

	// SessionsExhausted counts SessionsExhausted rejections.
	SessionsExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_sessions_exhausted_total",
			Help: "Total requests rejected because the session pool was exhausted",
		},
	)

	// ActiveSessions shows current active sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Number of active browser sessions",
		},
	)

	// CreditsCharged counts committed credit debits by operation kind.
	CreditsCharged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_credits_charged_total",
			Help: "Total credits committed (debited) by operation kind",
		},
		[]string{"kind"},
	)

	// CreditsRefunded counts refunded credit reservations by operation kind.
	CreditsRefunded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_credits_refunded_total",
			Help: "Total credits refunded by operation kind",
		},
		[]string{"kind"},
	)

	// SearchRequestsTotal counts search requests per engine outcome.
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_search_requests_total",
			Help: "Total per-engine search requests by outcome",
		},
		[]string{"engine", "outcome"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SessionPoolSize,
		SessionPoolAvailable,
		SessionLeasesAcquired,
		SessionsExhausted,
		ActiveSessions,
		CreditsCharged,
		CreditsRefunded,
		SearchRequestsTotal,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed gateway operation.
func RecordRequest(kind, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(kind, status).Inc()
	RequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCreditCharge records a committed credit debit.
func RecordCreditCharge(kind string, cost int) {
	CreditsCharged.WithLabelValues(kind).Add(float64(cost))
}

// RecordCreditRefund records a refunded credit reservation.
func RecordCreditRefund(kind string, cost int) {
	CreditsRefunded.WithLabelValues(kind).Add(float64(cost))
}

// RecordSearchRequest records one engine's outcome within a fan-out.
func RecordSearchRequest(engine, outcome string) {
	SearchRequestsTotal.WithLabelValues(engine, outcome).Inc()
}

// UpdatePoolMetrics updates session pool gauges.
func UpdatePoolMetrics(size, available int, acquired int64) {
	SessionPoolSize.Set(float64(size))
	SessionPoolAvailable.Set(float64(available))
}

// UpdateSessionMetrics updates the active-session gauge.
func UpdateSessionMetrics(count int) {
	ActiveSessions.Set(float64(count))
}

// RecordLeaseAcquired counts one successful SessionPool.Lease.
func RecordLeaseAcquired() {
	SessionLeasesAcquired.Inc()
}

// RecordSessionsExhausted counts one SessionsExhausted rejection.
func RecordSessionsExhausted() {
	SessionsExhausted.Inc()
}
