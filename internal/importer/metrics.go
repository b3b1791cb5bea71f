package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carpark_import_rows_total",
		Help: "Car park CSV rows processed, grouped by outcome.",
	}, []string{"result"})

	importDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "carpark_import_duration_seconds",
		Help:    "Wall time of a full CSV import run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	feedEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_feed_entries_total",
		Help: "Availability feed car park entries, grouped by outcome.",
	}, []string{"result"})

	feedRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_feed_refresh_total",
		Help: "Availability feed refresh runs, grouped by outcome.",
	}, []string{"result"})
)
