package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics aggregates the counters recorded for marketplace, dispute and
// relay activity.
type MarketMetrics struct {
	Purchases     *prometheus.CounterVec
	Disputes      prometheus.Counter
	Resolutions   prometheus.Counter
	RelayMessages *prometheus.CounterVec
	RelayRefunds  prometheus.Counter
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// Metrics returns the lazily-initialised metrics registry shared across the
// node.
func Metrics() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ethay",
				Subsystem: "market",
				Name:      "purchases_total",
				Help:      "Total purchases segmented by entry path (direct or relay).",
			}, []string{"path"}),
			Disputes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ethay",
				Subsystem: "market",
				Name:      "disputes_total",
				Help:      "Total disputes raised against escrowed purchases.",
			}),
			Resolutions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ethay",
				Subsystem: "market",
				Name:      "dispute_resolutions_total",
				Help:      "Total disputes resolved by judges.",
			}),
			RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ethay",
				Subsystem: "relay",
				Name:      "messages_total",
				Help:      "Total cross-chain messages segmented by outcome.",
			}, []string{"outcome"}),
			RelayRefunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ethay",
				Subsystem: "relay",
				Name:      "refund_claims_total",
				Help:      "Total refund claims paid out by the relay receiver.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.Purchases,
			marketRegistry.Disputes,
			marketRegistry.Resolutions,
			marketRegistry.RelayMessages,
			marketRegistry.RelayRefunds,
		)
	})
	return marketRegistry
}
