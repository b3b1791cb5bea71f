package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var nearestLookupSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "carpark_nearest_lookup_seconds",
	Help:    "Time spent resolving a nearest-car-parks page including aggregation.",
	Buckets: prometheus.DefBuckets,
})
