package observability

import (
	"fmt"
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

	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vaultcore",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
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

type engineMetrics struct {
	adjustments     *prometheus.CounterVec
	accruals        *prometheus.CounterVec
	auctionsStarted *prometheus.CounterVec
	auctionFills    prometheus.Counter
	auctionsClosed  prometheus.Counter
	activeAuctions  prometheus.Gauge
}

// EngineMetrics returns the metrics registry tracking vault engine activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "engine",
				Name:      "position_adjustments_total",
				Help:      "Count of position adjustments segmented by collateral symbol.",
			}, []string{"symbol"}),
			accruals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "engine",
				Name:      "accruals_total",
				Help:      "Count of fee accrual passes segmented by collateral symbol.",
			}, []string{"symbol"}),
			auctionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "engine",
				Name:      "auctions_started_total",
				Help:      "Count of liquidation auctions opened segmented by collateral symbol.",
			}, []string{"symbol"}),
			auctionFills: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "engine",
				Name:      "auction_fills_total",
				Help:      "Count of partial or full auction purchases.",
			}),
			auctionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vaultcore",
				Subsystem: "engine",
				Name:      "auctions_closed_total",
				Help:      "Count of liquidation auctions that settled fully.",
			}),
			activeAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vaultcore",
				Subsystem: "engine",
				Name:      "auctions_active",
				Help:      "Number of liquidation auctions currently open.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.adjustments,
			engineRegistry.accruals,
			engineRegistry.auctionsStarted,
			engineRegistry.auctionFills,
			engineRegistry.auctionsClosed,
			engineRegistry.activeAuctions,
		)
	})
	return engineRegistry
}

// RecordAdjustment increments the position adjustment counter for a symbol.
func (m *engineMetrics) RecordAdjustment(symbol string) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(labelSymbol(symbol)).Inc()
}

// RecordAccrual increments the accrual counter for a symbol.
func (m *engineMetrics) RecordAccrual(symbol string) {
	if m == nil {
		return
	}
	m.accruals.WithLabelValues(labelSymbol(symbol)).Inc()
}

// RecordAuctionStarted increments the opened auction counter for a symbol and
// bumps the active auction gauge.
func (m *engineMetrics) RecordAuctionStarted(symbol string) {
	if m == nil {
		return
	}
	m.auctionsStarted.WithLabelValues(labelSymbol(symbol)).Inc()
	m.activeAuctions.Inc()
}

// RecordAuctionFill increments the auction purchase counter.
func (m *engineMetrics) RecordAuctionFill() {
	if m == nil {
		return
	}
	m.auctionFills.Inc()
}

// RecordAuctionClosed increments the settled auction counter and decrements the
// active auction gauge.
func (m *engineMetrics) RecordAuctionClosed() {
	if m == nil {
		return
	}
	m.auctionsClosed.Inc()
	m.activeAuctions.Dec()
}
