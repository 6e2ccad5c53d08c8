package cas

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	objectPutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbforge_cas_objects_put_total",
			Help: "Total number of objects written to the content-addressable store",
		},
		[]string{"outcome"}, // stored or deduplicated
	)

	objectGetDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bbforge_cas_object_get_duration_seconds",
			Help:    "Time taken to read an object from the content-addressable store",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	gcObjectsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbforge_cas_gc_objects_evicted_total",
			Help: "Total number of objects removed by garbage collection",
		},
		[]string{"reason"}, // unreachable or lru
	)

	storeSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bbforge_cas_store_size_bytes",
			Help: "Total size of all objects currently in the content-addressable store",
		},
	)

	actionCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbforge_cas_action_cache_lookups_total",
			Help: "Total number of action cache lookups",
		},
		[]string{"outcome"}, // hit or miss
	)
)
