package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	savingsMetricsOnce sync.Once
	savingsRegistry    *SavingsMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and route.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "savings",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// SavingsMetrics captures ledger level activity.
type SavingsMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	vaultBalance   prometheus.Gauge
	activeDeposits prometheus.Gauge
}

// Savings returns the lazily-initialised savings metrics registry.
func Savings() *SavingsMetrics {
	savingsMetricsOnce.Do(func() {
		savingsRegistry = &SavingsMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Mutating ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "savings",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency of mutating ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			vaultBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "savings",
				Subsystem: "vault",
				Name:      "ledger_balance",
				Help:      "Vault ledger balance in base units after the latest commit.",
			}),
			activeDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "savings",
				Subsystem: "ledger",
				Name:      "active_deposits",
				Help:      "Number of deposits in the Active state after the latest commit.",
			}),
		}
		prometheus.MustRegister(
			savingsRegistry.operations,
			savingsRegistry.latency,
			savingsRegistry.vaultBalance,
			savingsRegistry.activeDeposits,
		)
	})
	return savingsRegistry
}

// ObserveOperation records a ledger operation. Outcome is "ok" or the error
// kind that rejected it.
func (m *SavingsMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetVaultBalance publishes the vault ledger balance.
func (m *SavingsMetrics) SetVaultBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.vaultBalance.Set(value)
}

// SetActiveDeposits publishes the active deposit count.
func (m *SavingsMetrics) SetActiveDeposits(count uint64) {
	if m == nil {
		return
	}
	m.activeDeposits.Set(float64(count))
}
