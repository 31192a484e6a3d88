package selection

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder fulfills MetricsRecorder for deployments that
// scrape selection metrics: a duration histogram per operation and an
// outcome counter per operation/status pair.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the collectors on reg (defaulting
// to the global registerer when nil) under the given namespace.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer, namespace string) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "kinefit"
	}
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "operation_duration_seconds",
			Help:      "Duration of selection operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "operation_results_total",
			Help:      "Outcomes of selection operations.",
		}, []string{"operation", "status"}),
	}
	if err := reg.Register(r.durations); err != nil {
		return nil, err
	}
	if err := reg.Register(r.results); err != nil {
		return nil, err
	}
	return r, nil
}

// Observe records a selection operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

var _ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
