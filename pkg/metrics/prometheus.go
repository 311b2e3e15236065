package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-query-cache/querycache"
)

// Prometheus implements querycache.Metrics with a request counter, an error
// counter and a duration histogram, all labelled by model.
type Prometheus struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ querycache.Metrics = (*Prometheus)(nil)

// NewPrometheus creates the collectors under namespace and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_cache_requests_total",
				Help:      "The total number of resolved queries by outcome",
			},
			[]string{"model", "outcome"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_cache_errors_total",
				Help:      "The total number of query cache errors by category",
			},
			[]string{"model", "category"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_cache_resolve_duration_seconds",
				Help:      "The query cache resolve latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{p.requests, p.errors, p.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// ObserveResolve counts the outcome and records its duration.
func (p *Prometheus) ObserveResolve(model string, outcome querycache.Outcome, d time.Duration) {
	p.requests.WithLabelValues(model, string(outcome)).Inc()
	p.duration.WithLabelValues(model, string(outcome)).Observe(d.Seconds())
}

// ObserveError counts a failure by category.
func (p *Prometheus) ObserveError(model string, category string) {
	p.errors.WithLabelValues(model, category).Inc()
}

// Requests returns the request counter, for exposition or tests.
func (p *Prometheus) Requests() *prometheus.CounterVec {
	return p.requests
}

// Errors returns the error counter.
func (p *Prometheus) Errors() *prometheus.CounterVec {
	return p.errors
}
