package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iph",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of forecast API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iph",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by forecast API endpoint",
		},
		[]string{"endpoint"},
	)

	CacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iph",
			Subsystem: "api",
			Name:      "cache_results_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"endpoint", "result"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iph",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, CacheResults, RateLimited)
	})
}
