package metrics

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// GaugeMetrics tracks ledger operations and the accrual state of each gauge.
// A nil *GaugeMetrics is valid and records nothing.
type GaugeMetrics struct {
	operations    *prometheus.CounterVec
	integral      *prometheus.GaugeVec
	workingSupply *prometheus.GaugeVec
	totalStaked   *prometheus.GaugeVec
	emissionRate  prometheus.Gauge
	distributed   prometheus.Gauge
	minted        *prometheus.CounterVec
}

var (
	gaugeOnce     sync.Once
	gaugeRegistry *GaugeMetrics
)

// Gauge returns the process-wide gauge collectors, registering them on first
// use.
func Gauge() *GaugeMetrics {
	gaugeOnce.Do(func() {
		gaugeRegistry = &GaugeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gauge",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by kind and outcome.",
			}, []string{"op", "outcome"}),
			integral: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "gauge",
				Name:      "integral",
				Help:      "Accumulated reward per unit of working supply, scaled by 1e18.",
			}, []string{"gauge"}),
			workingSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "gauge",
				Name:      "working_supply",
				Help:      "Sum of boost-adjusted balances.",
			}, []string{"gauge"}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "gauge",
				Name:      "total_staked",
				Help:      "Sum of raw staked balances.",
			}, []string{"gauge"}),
			emissionRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gauge",
				Subsystem: "distributor",
				Name:      "rate",
				Help:      "Emission rate of the running distributor epoch, per second.",
			}),
			distributed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gauge",
				Subsystem: "distributor",
				Name:      "distributed",
				Help:      "Total amount paid out by the distributor.",
			}),
			minted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gauge",
				Subsystem: "minter",
				Name:      "payouts_total",
				Help:      "Count of non-zero reward payouts per gauge.",
			}, []string{"gauge"}),
		}
		prometheus.MustRegister(
			gaugeRegistry.operations,
			gaugeRegistry.integral,
			gaugeRegistry.workingSupply,
			gaugeRegistry.totalStaked,
			gaugeRegistry.emissionRate,
			gaugeRegistry.distributed,
			gaugeRegistry.minted,
		)
	})
	return gaugeRegistry
}

// ObserveOperation counts a ledger operation. Errors are labelled by their
// sentinel text so that dashboards can split rejections by cause.
func (m *GaugeMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		msg = msg[idx+2:]
	}
	return strings.ReplaceAll(msg, " ", "_")
}

// ObserveState records the accrual state of a gauge after a commit.
func (m *GaugeMetrics) ObserveState(gauge string, integral, workingSupply, totalStaked *big.Int) {
	if m == nil {
		return
	}
	m.integral.WithLabelValues(gauge).Set(toFloat(integral))
	m.workingSupply.WithLabelValues(gauge).Set(toFloat(workingSupply))
	m.totalStaked.WithLabelValues(gauge).Set(toFloat(totalStaked))
}

// ObserveDistributor records the distributor's rate and cumulative payout.
func (m *GaugeMetrics) ObserveDistributor(rate, distributed *big.Int) {
	if m == nil {
		return
	}
	m.emissionRate.Set(toFloat(rate))
	m.distributed.Set(toFloat(distributed))
}

// ObservePayout counts a non-zero minter payout for gauge.
func (m *GaugeMetrics) ObservePayout(gauge string) {
	if m == nil {
		return
	}
	m.minted.WithLabelValues(gauge).Inc()
}

func toFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
