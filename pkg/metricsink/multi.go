package metricsink

import (
	"context"
	"errors"

	viewstate "github.com/goliatone/go-viewstate"
)

// Multi fans a sample out to every sink and joins their errors.
type Multi []viewstate.MetricSink

// RecordDuration implements viewstate.MetricSink.
func (m Multi) RecordDuration(ctx context.Context, sample viewstate.MetricSample) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.RecordDuration(ctx, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
