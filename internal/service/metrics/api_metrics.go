package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketflow",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketflow",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by API endpoint",
		},
		[]string{"endpoint"},
	)

	CacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketflow",
			Subsystem: "api",
			Name:      "cache_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"endpoint", "result"},
	)

	CycleTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketflow",
			Subsystem: "api",
			Name:      "cycle_triggers_total",
			Help:      "Manual cycle triggers by result",
		},
		[]string{"result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, CacheResults, CycleTriggers)
	})
}
