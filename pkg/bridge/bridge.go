// Package bridge is the only surface an external activity-file decoder
// calls into. Bridge.Ensure performs the one-time wiring and returns an
// Adapter whose methods never fail or panic.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/goliatone/go-viewstate/pkg/settings"
	"golang.org/x/sync/singleflight"
)

const (
	// LoadingOperation is the tracker id of the file loading operation.
	LoadingOperation = "fileLoading"
	// LoadTimer is the metrics timer id of a file load.
	LoadTimer = "fileLoad"
	// FilePath is the store namespace describing the current file.
	FilePath = "file"

	wireKey = "wire"
)

// ErrNotReady is returned by Ensure when ctx ends before wiring completes.
var ErrNotReady = errors.New("bridge: wiring not completed")

// ProgressSource is implemented by decoders that can report load progress.
// Decoders without it still work; loading progress is then only updated when
// the caller reports it.
type ProgressSource interface {
	OnProgress(func(progress float64))
}

// Config lists the collaborators the adapter talks to. Nil collaborators are
// created on first Ensure.
type Config struct {
	Store      *viewstate.Store
	Tracker    *viewstate.OperationTracker
	Metrics    *viewstate.MetricsRecorder
	Settings   *settings.Resolver
	Categories []settings.Category
	Decoder    any
	Logger     *slog.Logger
	Faults     viewstate.FaultHandler
}

// Bridge memoizes the adapter built from Config.
type Bridge struct {
	cfg    Config
	group  singleflight.Group
	mu     sync.Mutex
	ready  *Adapter
	logger *slog.Logger
}

// New builds an unwired bridge.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{cfg: cfg, logger: logger}
}

// Ensure wires the adapter once. Concurrent callers share one in-flight
// initialization; later calls return the memoized adapter. A failed wiring
// is not memoized and is retried by the next call.
func (b *Bridge) Ensure(ctx context.Context) (*Adapter, error) {
	if adapter := b.adapter(); adapter != nil {
		return adapter, nil
	}

	result := b.group.DoChan(wireKey, func() (any, error) {
		if adapter := b.adapter(); adapter != nil {
			return adapter, nil
		}
		adapter, err := b.wire()
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.ready = adapter
		b.mu.Unlock()
		return adapter, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		adapter, ok := res.Val.(*Adapter)
		if !ok {
			return nil, fmt.Errorf("bridge: unexpected wiring result %T", res.Val)
		}
		return adapter, nil
	}
}

func (b *Bridge) adapter() *Adapter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *Bridge) wire() (*Adapter, error) {
	opts := []viewstate.Option{viewstate.WithLogger(b.logger)}
	if b.cfg.Faults != nil {
		opts = append(opts, viewstate.WithFaultHandler(b.cfg.Faults))
	}

	store := b.cfg.Store
	if store == nil {
		store = viewstate.NewStore(opts...)
	}
	tracker := b.cfg.Tracker
	if tracker == nil {
		tracker = viewstate.NewOperationTracker(store, opts...)
	}
	metrics := b.cfg.Metrics
	if metrics == nil {
		metrics = viewstate.NewMetricsRecorder(store, opts...)
	}
	resolver := b.cfg.Settings
	if resolver == nil {
		resolverOpts := []settings.Option{settings.WithLogger(b.logger)}
		if b.cfg.Faults != nil {
			resolverOpts = append(resolverOpts, settings.WithFaultHandler(b.cfg.Faults))
		}
		resolver = settings.NewResolver(nil, resolverOpts...)
	}
	for _, category := range b.cfg.Categories {
		if err := resolver.RegisterCategory(category); err != nil {
			return nil, fmt.Errorf("bridge: register category %q: %w", category.Name, err)
		}
	}

	adapter := &Adapter{
		store:    store,
		tracker:  tracker,
		metrics:  metrics,
		settings: resolver,
		logger:   b.logger,
		faults: viewstate.FaultReporter{
			Logger:    b.logger,
			Handler:   b.cfg.Faults,
			Component: "bridge",
		},
	}

	b.hookDecoder(adapter)
	return adapter, nil
}

// hookDecoder connects the decoder progress callback. A decoder that cannot
// be hooked, or panics while being hooked, leaves the adapter uninstrumented.
func (b *Bridge) hookDecoder(adapter *Adapter) {
	if b.cfg.Decoder == nil {
		return
	}
	subject := fmt.Sprintf("%T", b.cfg.Decoder)
	defer func() {
		if recovered := recover(); recovered != nil {
			adapter.faults.Report(viewstate.FaultWiring, "wire", subject,
				fmt.Errorf("decoder progress hook panicked: %v", recovered))
		}
	}()

	decoder, ok := b.cfg.Decoder.(ProgressSource)
	if !ok {
		adapter.faults.Report(viewstate.FaultWiring, "wire", subject,
			errors.New("decoder does not report progress"))
		return
	}
	decoder.OnProgress(adapter.UpdateLoadingProgress)
	b.logger.Debug("decoder progress wired", slog.String("decoder", subject))
}
