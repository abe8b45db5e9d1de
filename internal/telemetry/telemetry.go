// Package telemetry records evaluation metrics.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures events emitted by the engine. Hooks run inline with
// condition evaluation.
type Collector interface {
	ObserveCondition(collection, state string, elapsed time.Duration)
	IncError(kind string)
	IncRun(status string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObserveCondition(string, string, time.Duration) {}
func (noopCollector) IncError(string)                                {}
func (noopCollector) IncRun(string)                                  {}

// PrometheusCollector exposes evaluation metrics via Prometheus.
type PrometheusCollector struct {
	conditions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	runs       *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg. Metrics already
// registered by an earlier collector are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	conditions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsa_conditions_total",
		Help: "Number of conditions processed, by final state.",
	}, []string{"collection", "state"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsa_condition_evaluation_seconds",
		Help:    "Time spent evaluating one condition.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"collection"}))
	if err != nil {
		return nil, err
	}
	errs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsa_errors_total",
		Help: "Number of reported errors, by kind.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsa_runs_total",
		Help: "Number of evaluation runs, by status.",
	}, []string{"status"}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		conditions: conditions,
		duration:   duration,
		errors:     errs,
		runs:       runs,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("failed to register metric: %w", err)
	}
	return c, nil
}

// ObserveCondition counts a condition and records its evaluation time.
func (p *PrometheusCollector) ObserveCondition(collection, state string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.conditions.WithLabelValues(collection, state).Inc()
	if elapsed > 0 {
		p.duration.WithLabelValues(collection).Observe(elapsed.Seconds())
	}
}

// IncError counts one reported error.
func (p *PrometheusCollector) IncError(kind string) {
	if p == nil {
		return
	}
	p.errors.WithLabelValues(kind).Inc()
}

// IncRun counts a finished run.
func (p *PrometheusCollector) IncRun(status string) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(status).Inc()
}

// WriteTextfile writes every metric gathered by g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
