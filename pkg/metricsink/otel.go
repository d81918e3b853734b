package metricsink

import (
	"context"
	"fmt"
	"sort"

	viewstate "github.com/goliatone/go-viewstate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/goliatone/go-viewstate"

// OTel records samples into a Float64Histogram in seconds. Tags become
// attributes.
type OTel struct {
	durations metric.Float64Histogram
}

// NewOTel builds the histogram on meter, or on the global meter provider
// when meter is nil.
func NewOTel(meter metric.Meter) (*OTel, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	durations, err := meter.Float64Histogram(
		"viewstate_operation_duration_seconds",
		metric.WithDescription("Duration of tracked viewer operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("metricsink: create histogram: %w", err)
	}
	return &OTel{durations: durations}, nil
}

// RecordDuration implements viewstate.MetricSink.
func (o *OTel) RecordDuration(ctx context.Context, sample viewstate.MetricSample) error {
	attrs := make([]attribute.KeyValue, 0, len(sample.Tags)+1)
	attrs = append(attrs, attribute.String(operationLabel, sample.OperationID))
	keys := make([]string, 0, len(sample.Tags))
	for key := range sample.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, sample.Tags[key]))
	}
	o.durations.Record(ctx, sample.Duration().Seconds(), metric.WithAttributes(attrs...))
	return nil
}
