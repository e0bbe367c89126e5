package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type stakingMetrics struct {
	operations    *prometheus.CounterVec
	totalStaked   *prometheus.GaugeVec
	rewardsPaid   *prometheus.GaugeVec
	saleRemaining *prometheus.GaugeVec
	pauseEngaged  *prometheus.GaugeVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	stakingMetricsOnce sync.Once
	stakingRegistry    *stakingMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecm",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecm",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecm",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
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

// Staking returns the singleton registry tracking pool health.
func Staking() *stakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &stakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecm",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Count of staking state transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecm",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Currently locked principal per pool in integer token units.",
			}, []string{"pool"}),
			rewardsPaid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecm",
				Subsystem: "staking",
				Name:      "rewards_paid",
				Help:      "Cumulative rewards paid per pool in integer token units.",
			}, []string{"pool"}),
			saleRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecm",
				Subsystem: "staking",
				Name:      "sale_remaining",
				Help:      "Remaining purchasable allocation per pool in integer token units.",
			}, []string{"pool"}),
			pauseEngaged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ecm",
				Subsystem: "staking",
				Name:      "pause_engaged",
				Help:      "Indicates whether a module pause guard is active (1) or not (0).",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardsPaid,
			stakingRegistry.saleRemaining,
			stakingRegistry.pauseEngaged,
		)
	})
	return stakingRegistry
}

// RecordOperation increments the operation counter with a success/error outcome.
func (m *stakingMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// RecordPool refreshes the per-pool gauges from the latest accounting snapshot.
func (m *stakingMetrics) RecordPool(poolID string, totalStaked, rewardsPaid, saleRemaining *big.Int) {
	if m == nil {
		return
	}
	label := labelPool(poolID)
	m.totalStaked.WithLabelValues(label).Set(bigToFloat(totalStaked))
	m.rewardsPaid.WithLabelValues(label).Set(bigToFloat(rewardsPaid))
	m.saleRemaining.WithLabelValues(label).Set(bigToFloat(saleRemaining))
}

// SetPause toggles the pause gauge for a module.
func (m *stakingMetrics) SetPause(module string, engaged bool) {
	if m == nil {
		return
	}
	value := 0.0
	if engaged {
		value = 1.0
	}
	m.pauseEngaged.WithLabelValues(module).Set(value)
}

func labelPool(poolID string) string {
	trimmed := strings.TrimSpace(poolID)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
