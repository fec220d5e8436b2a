// Package metrics exposes the reference host's Prometheus instrumentation,
// grounded on the coinbase trading bot's prometheus.NewCounterVec /
// MustRegister wiring style.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_fills_total",
			Help: "Matched-order events applied to a position, by market and side.",
		},
		[]string{"market", "side"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perp_queue_depth",
			Help: "Current occupancy of a market's request/event queue.",
		},
		[]string{"market", "queue"},
	)

	LiquidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_liquidations_total",
			Help: "Completed forced liquidations, by market.",
		},
		[]string{"market"},
	)

	SlabLeafCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perp_slab_leaf_count",
			Help: "Resting leaf count in a market's bid/ask slab.",
		},
		[]string{"market", "side"},
	)
)

func init() {
	prometheus.MustRegister(FillsTotal, QueueDepth, LiquidationsTotal, SlabLeafCount)
}
