package viewstate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MetricsPath is the store namespace that holds finished timer samples.
const MetricsPath = "metrics"

const metricsSource = "metrics-recorder"

// MetricSample is one finished timer measurement.
type MetricSample struct {
	OperationID string            `json:"operation_id"`
	DurationMs  float64           `json:"duration_ms"`
	Tags        map[string]string `json:"tags,omitempty"`
	RecordedAt  time.Time         `json:"recorded_at"`
}

// Duration returns the sample length as a time.Duration.
func (m MetricSample) Duration() time.Duration {
	return time.Duration(m.DurationMs * float64(time.Millisecond))
}

func (m MetricSample) clone() MetricSample {
	out := m
	if m.Tags != nil {
		out.Tags = make(map[string]string, len(m.Tags))
		for key, value := range m.Tags {
			out.Tags[key] = value
		}
	}
	return out
}

// MetricSink receives every finished sample. Errors are logged by the
// recorder and never surfaced to the caller of EndTimer.
type MetricSink interface {
	RecordDuration(ctx context.Context, sample MetricSample) error
}

// MetricSinkFunc adapts a function to MetricSink.
type MetricSinkFunc func(ctx context.Context, sample MetricSample) error

// RecordDuration implements MetricSink.
func (f MetricSinkFunc) RecordDuration(ctx context.Context, sample MetricSample) error {
	if f == nil {
		return nil
	}
	return f(ctx, sample)
}

// TimerOption configures a single StartTimer call.
type TimerOption func(*timerConfig)

type timerConfig struct {
	tags map[string]string
}

// WithTags attaches tags to the sample produced by the matching EndTimer.
func WithTags(tags map[string]string) TimerOption {
	return func(cfg *timerConfig) {
		if len(tags) == 0 {
			return
		}
		if cfg.tags == nil {
			cfg.tags = make(map[string]string, len(tags))
		}
		for key, value := range tags {
			cfg.tags[key] = value
		}
	}
}

type runningTimer struct {
	started time.Time
	tags    map[string]string
}

// MetricsRecorder measures named timers and mirrors finished samples into the
// store under "metrics.<id>". Unknown timers are reported as absent, never as
// errors.
type MetricsRecorder struct {
	mu      sync.Mutex
	running map[string]runningTimer
	samples map[string]MetricSample

	store  *Store
	sinks  []MetricSink
	logger *slog.Logger
	faults FaultReporter
	now    func() time.Time
}

// NewMetricsRecorder builds a recorder. store may be nil, in which case
// samples are only kept in memory and forwarded to sinks.
func NewMetricsRecorder(store *Store, opts ...Option) *MetricsRecorder {
	cfg := applyOptions(opts)
	return &MetricsRecorder{
		running: map[string]runningTimer{},
		samples: map[string]MetricSample{},
		store:   store,
		sinks:   append([]MetricSink(nil), cfg.sinks...),
		logger:  cfg.loggerOrDefault(),
		faults:  cfg.reporter("metrics"),
		now:     cfg.clock(),
	}
}

// StartTimer records the start of id. Restarting a timer discards the previous
// start and the previous sample.
func (r *MetricsRecorder) StartTimer(id string, opts ...TimerOption) {
	if r == nil {
		return
	}
	cfg := timerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	r.mu.Lock()
	r.running[id] = runningTimer{started: r.now(), tags: cfg.tags}
	delete(r.samples, id)
	r.mu.Unlock()
	r.logger.Debug("timer started", slog.String("timer", id))
}

// EndTimer stops id and returns the elapsed duration. It returns false when no
// matching StartTimer call exists.
func (r *MetricsRecorder) EndTimer(id string) (time.Duration, bool) {
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	timer, ok := r.running[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("timer not started", slog.String("timer", id))
		return 0, false
	}
	delete(r.running, id)
	now := r.now()
	elapsed := now.Sub(timer.started)
	sample := MetricSample{
		OperationID: id,
		DurationMs:  float64(elapsed) / float64(time.Millisecond),
		Tags:        timer.tags,
		RecordedAt:  now,
	}
	r.samples[id] = sample
	r.mu.Unlock()

	r.forward(sample)
	return elapsed, true
}

// GetOperationTime returns the ended duration of id, or the time elapsed since
// its start while it is still running.
func (r *MetricsRecorder) GetOperationTime(id string) (time.Duration, bool) {
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sample, ok := r.samples[id]; ok {
		return sample.Duration(), true
	}
	if timer, ok := r.running[id]; ok {
		return r.now().Sub(timer.started), true
	}
	return 0, false
}

// Sample returns the last finished sample for id.
func (r *MetricsRecorder) Sample(id string) (MetricSample, bool) {
	if r == nil {
		return MetricSample{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sample, ok := r.samples[id]
	return sample.clone(), ok
}

func (r *MetricsRecorder) forward(sample MetricSample) {
	if r.store != nil {
		key := segmentKey(sample.OperationID)
		r.faults.Guard("forward", sample.OperationID, func() error {
			if key == "" {
				return NewFault(FaultMisuse, "", "", ErrInvalidPath)
			}
			r.store.Set(MetricsPath+"."+key, sample, Source(metricsSource))
			return nil
		})
	}
	for _, sink := range r.sinks {
		r.faults.Guard("sink", sample.OperationID, func() error {
			if err := sink.RecordDuration(context.Background(), sample.clone()); err != nil {
				return NewFault(FaultPersistence, "", "", err)
			}
			return nil
		})
	}
}
