package metrics

import (
	"IPHForecast/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics interface using Prometheus.
type Recorder struct {
	observations  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latestValue   prometheus.Gauge
	latency       *prometheus.HistogramVec
	subEstimators *prometheus.CounterVec
}

var _ repository.Metrics = (*Recorder)(nil)

// New registers the collectors on reg, or on the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iph_observations_appended_total",
				Help: "Observations appended to the series",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iph_errors_total",
				Help: "Errors encountered by kind",
			},
			[]string{"type"},
		),
		latestValue: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "iph_latest_value",
				Help: "Most recent indicator value",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iph_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		subEstimators: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iph_sub_estimator_failures_total",
				Help: "Ensemble members that failed during band estimation",
			},
			[]string{"model"},
		),
	}
}

func (r *Recorder) RecordObservation(source string) {
	r.observations.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatestValue(v float64) {
	r.latestValue.Set(v)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSubEstimatorFailure(model string) {
	r.subEstimators.WithLabelValues(model).Inc()
}
