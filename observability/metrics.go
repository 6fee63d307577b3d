package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics is the Prometheus registry every gateway middleware records
// HTTP handler activity against: request/error counts, latency, and
// rate-limit throttles. gateway/middleware/observability.go and
// gateway/middleware/ratelimit.go both share the ModuleMetrics() singleton
// rather than each registering their own counters.
type GatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *GatewayMetrics

	creditsMetricsOnce sync.Once
	creditsRegistry    *CreditsMetrics

	servicesMetricsOnce sync.Once
	servicesRegistry    *ServicesMetrics
)

// ModuleMetrics returns the lazily-initialised gateway metrics registry used
// to record HTTP handler activity.
func ModuleMetrics() *GatewayMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway HTTP requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway HTTP errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vsbld",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to rate limiting.",
			}, []string{"route", "reason"}),
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

// Observe records the outcome of a gateway request. The status code should
// be the HTTP status that was ultimately written to the response writer.
func (m *GatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, statusLabel(status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit" so
// dashboards and alerts remain consistent.
func (m *GatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// RequestsVec exposes the request counter for tests asserting on recorded
// outcomes via testutil.ToFloat64.
func (m *GatewayMetrics) RequestsVec() *prometheus.CounterVec { return m.requests }

// ThrottlesVec exposes the throttle counter for tests asserting on recorded
// rate-limit rejections via testutil.ToFloat64.
func (m *GatewayMetrics) ThrottlesVec() *prometheus.CounterVec { return m.throttles }

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// CreditsMetrics captures trade volume and fee capture for the bonding-curve
// credits engine (§4.1).
type CreditsMetrics struct {
	trades       *prometheus.CounterVec
	tradeVolume  *prometheus.CounterVec
	feesCaptured *prometheus.CounterVec
	totalSupply  *prometheus.GaugeVec
}

// Credits returns the singleton metrics registry for the credits engine.
func Credits() *CreditsMetrics {
	creditsMetricsOnce.Do(func() {
		creditsRegistry = &CreditsMetrics{
			trades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "credits",
				Name:      "trades_total",
				Help:      "Count of buy/sell credits trades segmented by visibility and side.",
			}, []string{"visibility_id", "side"}),
			tradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "credits",
				Name:      "trade_volume_units",
				Help:      "Sum of credit units traded segmented by visibility and side.",
			}, []string{"visibility_id", "side"}),
			feesCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "credits",
				Name:      "fees_captured_total",
				Help:      "Cumulative fee amount captured segmented by visibility and fee type.",
			}, []string{"visibility_id", "fee_type"}),
			totalSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vsbld",
				Subsystem: "credits",
				Name:      "total_supply",
				Help:      "Current total credit supply per visibility.",
			}, []string{"visibility_id"}),
		}
		prometheus.MustRegister(
			creditsRegistry.trades,
			creditsRegistry.tradeVolume,
			creditsRegistry.feesCaptured,
			creditsRegistry.totalSupply,
		)
	})
	return creditsRegistry
}

// RecordTrade records one buy or sell trade's volume and fee decomposition.
func (m *CreditsMetrics) RecordTrade(visibilityID string, isBuy bool, amount uint64, creatorFee, protocolFee, referrerFee *big.Int, newTotalSupply uint64) {
	if m == nil {
		return
	}
	vid := labelVisibility(visibilityID)
	side := "sell"
	if isBuy {
		side = "buy"
	}
	m.trades.WithLabelValues(vid, side).Inc()
	m.tradeVolume.WithLabelValues(vid, side).Add(float64(amount))
	m.feesCaptured.WithLabelValues(vid, "creator").Add(bigToFloat(creatorFee))
	m.feesCaptured.WithLabelValues(vid, "protocol").Add(bigToFloat(protocolFee))
	m.feesCaptured.WithLabelValues(vid, "referrer").Add(bigToFloat(referrerFee))
	m.totalSupply.WithLabelValues(vid).Set(float64(newTotalSupply))
}

func labelVisibility(vid string) string {
	trimmed := strings.TrimSpace(vid)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// ServicesMetrics tracks per-execution state-machine transitions (§4.2).
type ServicesMetrics struct {
	transitions    *prometheus.CounterVec
	autoValidated  prometheus.Counter
	openExecutions prometheus.Gauge
}

// Services returns the singleton metrics registry for the services engine.
func Services() *ServicesMetrics {
	servicesMetricsOnce.Do(func() {
		servicesRegistry = &ServicesMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "services",
				Name:      "execution_transitions_total",
				Help:      "Count of execution state machine transitions segmented by resulting state.",
			}, []string{"state"}),
			autoValidated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vsbld",
				Subsystem: "services",
				Name:      "executions_auto_validated_total",
				Help:      "Count of executions validated by the auto-validation delay rather than the requester.",
			}),
			openExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vsbld",
				Subsystem: "services",
				Name:      "open_executions",
				Help:      "Current count of executions in REQUESTED, ACCEPTED, or DISPUTED state.",
			}),
		}
		prometheus.MustRegister(
			servicesRegistry.transitions,
			servicesRegistry.autoValidated,
			servicesRegistry.openExecutions,
		)
	})
	return servicesRegistry
}

// RecordTransition increments the transition counter for the resulting
// execution state.
func (m *ServicesMetrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.transitions.WithLabelValues(state).Inc()
}

// RecordAutoValidated increments the auto-validation counter.
func (m *ServicesMetrics) RecordAutoValidated() {
	if m == nil {
		return
	}
	m.autoValidated.Inc()
}

// SetOpenExecutions updates the open-executions gauge.
func (m *ServicesMetrics) SetOpenExecutions(count int) {
	if m == nil {
		return
	}
	m.openExecutions.Set(float64(count))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
