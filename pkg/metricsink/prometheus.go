// Package metricsink forwards finished timer samples from a
// viewstate.MetricsRecorder to Prometheus or OpenTelemetry.
package metricsink

import (
	"context"
	"errors"
	"fmt"
	"sort"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultNamespace = "viewstate"
	defaultName      = "operation_duration_seconds"
	operationLabel   = "operation"
)

// PrometheusConfig configures the histogram. TagKeys become extra labels;
// samples missing a tag record it as "".
type PrometheusConfig struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	Buckets    []float64
	TagKeys    []string
	Registerer prometheus.Registerer
}

// Prometheus records samples into a histogram vector labelled by operation.
type Prometheus struct {
	durations *prometheus.HistogramVec
	tagKeys   []string
}

// NewPrometheus registers the histogram with cfg.Registerer, defaulting to
// the global registry. An identical collector already registered is reused.
func NewPrometheus(cfg PrometheusConfig) (*Prometheus, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = defaultNamespace
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Help == "" {
		cfg.Help = "Duration of tracked viewer operations"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	tagKeys := append([]string(nil), cfg.TagKeys...)
	sort.Strings(tagKeys)

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      cfg.Name,
		Help:      cfg.Help,
		Buckets:   cfg.Buckets,
	}, append([]string{operationLabel}, tagKeys...))

	if err := cfg.Registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("metricsink: register histogram: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("metricsink: collector %q registered with another type", cfg.Name)
		}
		vec = existing
	}
	return &Prometheus{durations: vec, tagKeys: tagKeys}, nil
}

// Collector exposes the underlying histogram vector.
func (p *Prometheus) Collector() prometheus.Collector {
	return p.durations
}

// RecordDuration implements viewstate.MetricSink.
func (p *Prometheus) RecordDuration(_ context.Context, sample viewstate.MetricSample) error {
	labels := make([]string, 0, len(p.tagKeys)+1)
	labels = append(labels, sample.OperationID)
	for _, key := range p.tagKeys {
		labels = append(labels, sample.Tags[key])
	}
	observer, err := p.durations.GetMetricWithLabelValues(labels...)
	if err != nil {
		return fmt.Errorf("metricsink: observe %q: %w", sample.OperationID, err)
	}
	observer.Observe(sample.Duration().Seconds())
	return nil
}
