// Package metrics records mining and chain statistics as Prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hashledger"

// Metrics holds the collectors updated while mining and appending blocks.
// It implements the miner.Recorder interface.
type Metrics struct {
	attempts prometheus.Counter
	solved   prometheus.Counter
	duration prometheus.Histogram
	size     prometheus.Gauge
}

// New constructs the collectors and registers them with the registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := Metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "hash_attempts_total",
			Help:      "Number of header hashes computed while mining.",
		}),
		solved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "blocks_mined_total",
			Help:      "Number of mining calls that found an admissible header.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "mining_seconds",
			Help:      "Time spent by mining calls that found an admissible header.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "blocks",
			Help:      "Number of blocks in the chain.",
		}),
	}

	for _, c := range []prometheus.Collector{m.attempts, m.solved, m.duration, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

// AddAttempts adds to the number of hashes computed.
func (m *Metrics) AddAttempts(n uint64) {
	m.attempts.Add(float64(n))
}

// ObserveSolved records a successful mining call.
func (m *Metrics) ObserveSolved(d time.Duration) {
	m.solved.Inc()
	m.duration.Observe(d.Seconds())
}

// SetChainSize records the current number of blocks.
func (m *Metrics) SetChainSize(n int) {
	m.size.Set(float64(n))
}
