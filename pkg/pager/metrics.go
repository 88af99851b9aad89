package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for engine operations.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_fetches_total",
		Help: "Total page fetches by request kind and result",
	}, []string{"kind", "result"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds by request kind",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	triggersDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_triggers_dropped_total",
		Help: "Triggers ignored because a fetch was already in flight",
	}, []string{"kind"})

	triggersAbsorbedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_triggers_absorbed_total",
		Help: "Load-more triggers absorbed because the last page was reached",
	})

	itemsAccumulated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pager_items_accumulated",
		Help: "Number of items in the most recently published list",
	})
)
