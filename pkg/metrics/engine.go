package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics records sync engine activity: transfers, retries, watchdog
// fires and live index subscriptions.
//
// A nil-registry EngineMetrics is a no-op; callers never need to guard their
// observation calls.
type EngineMetrics struct {
	transfersTotal    *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
	retriesTotal      prometheus.Counter
	watchdogFires     prometheus.Counter
	subscriptionsLive prometheus.Gauge

	enabled bool
}

// NewEngineMetrics creates engine metrics bound to the global registry, or a
// no-op instance when metrics are disabled.
func NewEngineMetrics() *EngineMetrics {
	reg := GetRegistry()
	if reg == nil {
		return &EngineMetrics{}
	}

	factory := promauto.With(reg)

	return &EngineMetrics{
		enabled: true,
		transfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dittosync",
			Subsystem: "engine",
			Name:      "transfers_total",
			Help:      "Transfer operations by direction and outcome.",
		}, []string{"direction", "outcome"}),
		transferDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dittosync",
			Subsystem: "engine",
			Name:      "transfer_duration_seconds",
			Help:      "Wall-clock duration of transfer operations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"direction"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittosync",
			Subsystem: "engine",
			Name:      "transfer_retries_total",
			Help:      "Watchdog-triggered transfer retries.",
		}),
		watchdogFires: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittosync",
			Subsystem: "engine",
			Name:      "watchdog_fires_total",
			Help:      "Idle watchdog activations (retry or timeout).",
		}),
		subscriptionsLive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dittosync",
			Subsystem: "engine",
			Name:      "index_subscriptions_live",
			Help:      "Currently registered index subscriptions.",
		}),
	}
}

// ObserveTransfer records one finished transfer operation.
func (m *EngineMetrics) ObserveTransfer(direction, outcome string, elapsed time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.transfersTotal.WithLabelValues(direction, outcome).Inc()
	m.transferDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
}

// ObserveRetry records a watchdog-triggered retry.
func (m *EngineMetrics) ObserveRetry() {
	if m == nil || !m.enabled {
		return
	}
	m.retriesTotal.Inc()
}

// ObserveWatchdogFire records an idle watchdog activation.
func (m *EngineMetrics) ObserveWatchdogFire() {
	if m == nil || !m.enabled {
		return
	}
	m.watchdogFires.Inc()
}

// SubscriptionOpened and SubscriptionClosed track the live subscription gauge.
func (m *EngineMetrics) SubscriptionOpened() {
	if m == nil || !m.enabled {
		return
	}
	m.subscriptionsLive.Inc()
}

func (m *EngineMetrics) SubscriptionClosed() {
	if m == nil || !m.enabled {
		return
	}
	m.subscriptionsLive.Dec()
}
