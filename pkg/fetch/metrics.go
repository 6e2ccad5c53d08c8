package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbforge_fetch_total",
			Help: "Total number of do_fetch source fetch attempts",
		},
		[]string{"outcome"}, // ok or error
	)

	fetchLimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bbforge_fetch_limiter_wait_seconds",
			Help:    "Time a fetch spent waiting on the rate limiter before starting",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	)
)
