package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics tracks engine calls and the pool accumulators.
type ProtocolMetrics struct {
	calls             *prometheus.CounterVec
	callLatency       *prometheus.HistogramVec
	liquidations      *prometheus.CounterVec
	totalRWA          prometheus.Gauge
	totalCollateral   prometheus.Gauge
	interestCollected prometheus.Gauge
	epoch             prometheus.Gauge
	product           prometheus.Gauge
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rwalend_calls_total",
				Help: "Engine calls by operation and error name (\"ok\" on success).",
			}, []string{"op", "result"}),
			callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rwalend_call_duration_seconds",
				Help:    "Engine call latency including the state commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rwalend_liquidations_total",
				Help: "Liquidations by resulting position status.",
			}, []string{"status"}),
			totalRWA: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rwalend_pool_total_rwa",
				Help: "Synthetic asset staked in the stability pool.",
			}),
			totalCollateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rwalend_pool_total_collateral",
				Help: "Collateral held by the pool for stakers.",
			}),
			interestCollected: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rwalend_interest_collected",
				Help: "Collateral collected as interest since genesis.",
			}),
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rwalend_pool_epoch",
				Help: "Current stability pool epoch.",
			}),
			product: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rwalend_pool_product",
				Help: "Current product accumulator P.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.calls,
			protocolRegistry.callLatency,
			protocolRegistry.liquidations,
			protocolRegistry.totalRWA,
			protocolRegistry.totalCollateral,
			protocolRegistry.interestCollected,
			protocolRegistry.epoch,
			protocolRegistry.product,
		)
	})
	return protocolRegistry
}

func (m *ProtocolMetrics) ObserveCall(op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.calls.WithLabelValues(op, result).Inc()
	m.callLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *ProtocolMetrics) RecordLiquidation(status string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(status).Inc()
}

// SetPool publishes the pool accumulators after a commit.
func (m *ProtocolMetrics) SetPool(totalRWA, totalCollateral, interest, product *big.Int, epoch uint64) {
	if m == nil {
		return
	}
	m.totalRWA.Set(toFloat(totalRWA))
	m.totalCollateral.Set(toFloat(totalCollateral))
	m.interestCollected.Set(toFloat(interest))
	m.product.Set(toFloat(product))
	m.epoch.Set(float64(epoch))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
