package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acquireWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bank_pool_acquire_wait_seconds",
		Help:    "Time callers spent waiting for a connection lease",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_pool_exhausted_total",
		Help: "Acquire calls that hit the wait timeout",
	})

	reclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_pool_reclaimed_total",
		Help: "Leases reclaimed after the abandonment timeout",
	})

	connectionsDesc = prometheus.NewDesc(
		"bank_pool_connections",
		"Connections in the pool by state",
		[]string{"state"}, nil,
	)
)

// Describe implements prometheus.Collector.
func (p *Pool[C]) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectionsDesc
}

// Collect implements prometheus.Collector with a snapshot of Stat.
func (p *Pool[C]) Collect(ch chan<- prometheus.Metric) {
	s := p.Stat()
	for state, v := range map[string]int32{
		"total":  s.Total,
		"idle":   s.Idle,
		"leased": s.Leased,
		"max":    s.MaxTotal,
	} {
		ch <- prometheus.MustNewConstMetric(connectionsDesc, prometheus.GaugeValue, float64(v), state)
	}
}
