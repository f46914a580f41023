package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "IPHForecast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metrics     *httpMetrics
)

func httpMetricsFor(reg prometheus.Registerer) *httpMetrics {
	metricsOnce.Do(func() {
		f := promauto.With(reg)
		metrics = &httpMetrics{
			requests: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iph",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "iph",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route and status class.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			}, []string{"route", "class"}),
			size: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "iph",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "HTTP response body size by route.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 7),
			}, []string{"route"}),
			inFlight: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "iph",
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Requests currently being served.",
			}),
		}
	})
	return metrics
}

// Metrics records per-route request metrics and warns about requests slower than slow.
// Errors are rendered before the status is read so the recorded code matches the response.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := httpMetricsFor(prometheus.DefaultRegisterer)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			d := time.Since(start)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			res := c.Response()
			m.requests.WithLabelValues(route, c.Request().Method, strconv.Itoa(res.Status)).Inc()
			m.latency.WithLabelValues(route, strconv.Itoa(res.Status/100)+"xx").Observe(d.Seconds())
			m.size.WithLabelValues(route).Observe(float64(res.Size))

			if l != nil && slow > 0 && d >= slow {
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.Int("status", res.Status),
					applogger.Duration("duration_ms", d),
					applogger.Int64("bytes", res.Size),
				)
			}
			return nil
		}
	}
}
