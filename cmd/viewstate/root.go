package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/goliatone/go-viewstate/internal/config"
	"github.com/goliatone/go-viewstate/internal/logging"
	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/goliatone/go-viewstate/pkg/kv"
	"github.com/goliatone/go-viewstate/pkg/metricsink"
	"github.com/goliatone/go-viewstate/pkg/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// app holds the collaborators shared by every subcommand. They are built in
// the root PersistentPreRunE once flags are parsed.
type app struct {
	out        io.Writer
	configFile string

	cfg      config.Config
	logger   *slog.Logger
	storage  kv.Storage
	resolver *settings.Resolver
	metrics  *viewstate.MetricsRecorder
	flush    func(context.Context) error
	timer    string
}

func newApp(out io.Writer) *app {
	return &app{out: out, logger: logging.Discard()}
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "viewstate",
		Short:         "Inspect viewer preferences, settings and state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.finish(cmd.Context())
		},
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default .viewstate.toml)")
	flags.String("dsn", "", "storage DSN (memory://, file://, sqlite://, badger://, postgres://)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("evaluator", "", "expression engine (expr, cel, js)")

	root.AddCommand(
		a.prefsCommand(),
		a.settingsCommand(),
		a.stateCommand(),
		a.watchCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	v := config.NewViper(a.configFile)
	root := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"storage.dsn": "dsn",
		"log.level":   "log-level",
		"log.format":  "log-format",
		"evaluator":   "evaluator",
	} {
		if f := root.Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger

	storage, err := kv.Open(cfg.Storage.DSN, kv.WithLogger(logger), kv.WithTimeout(cfg.Storage.Timeout))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.storage = storage

	hooks := activity.Hooks{activity.HookFunc(func(_ context.Context, event activity.Event) error {
		logger.Info("activity",
			slog.String("verb", event.Verb),
			slog.String("object", event.ObjectID),
			slog.String("channel", event.Channel),
		)
		return nil
	})}
	a.resolver = settings.NewResolver(storage,
		settings.WithLogger(logger),
		settings.WithActivityHooks(hooks),
		settings.WithActivityChannel(cfg.Channel),
	)

	opts := []viewstate.Option{viewstate.WithLogger(logger)}
	sink, flush, err := a.metricSink()
	if err != nil {
		return err
	}
	if sink != nil {
		opts = append(opts, viewstate.WithMetricSink(sink))
	}
	a.flush = flush
	a.metrics = viewstate.NewMetricsRecorder(nil, opts...)
	a.timer = strings.ReplaceAll(cmd.CommandPath(), " ", ".")
	a.metrics.StartTimer(a.timer, viewstate.WithTags(map[string]string{"command": cmd.Name()}))
	return nil
}

func (a *app) metricSink() (viewstate.MetricSink, func(context.Context) error, error) {
	switch a.cfg.Metrics.Sink {
	case "prometheus":
		registry := prometheus.NewRegistry()
		sink, err := metricsink.NewPrometheus(metricsink.PrometheusConfig{
			Namespace:  a.cfg.Metrics.Namespace,
			TagKeys:    []string{"command"},
			Registerer: registry,
		})
		if err != nil {
			return nil, nil, err
		}
		return sink, func(context.Context) error {
			families, err := registry.Gather()
			if err != nil {
				return err
			}
			for _, family := range families {
				a.logger.Debug("metric", slog.String("name", family.GetName()), slog.Int("series", len(family.GetMetric())))
			}
			return nil
		}, nil
	case "otel":
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		sink, err := metricsink.NewOTel(provider.Meter("viewstate-cli"))
		if err != nil {
			return nil, nil, err
		}
		return sink, func(ctx context.Context) error {
			var collected metricdata.ResourceMetrics
			if err := reader.Collect(ctx, &collected); err != nil {
				return err
			}
			for _, scope := range collected.ScopeMetrics {
				for _, m := range scope.Metrics {
					a.logger.Debug("metric", slog.String("name", m.Name), slog.String("scope", scope.Scope.Name))
				}
			}
			return provider.Shutdown(ctx)
		}, nil
	default:
		return nil, nil, nil
	}
}

func (a *app) finish(ctx context.Context) error {
	if a.metrics == nil {
		return nil
	}
	if elapsed, ok := a.metrics.EndTimer(a.timer); ok {
		a.logger.Debug("command finished", slog.String("command", a.timer), slog.Duration("elapsed", elapsed))
	}
	if a.flush == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return a.flush(ctx)
}

func (a *app) close() {
	if a.storage == nil {
		return
	}
	if err := kv.Close(a.storage); err != nil {
		a.logger.Warn("close storage", slog.Any("error", err))
	}
	a.storage = nil
}

func (a *app) printJSON(value any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (a *app) printLines(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(a.out, line)
	}
}

// parseValue decodes raw as JSON, falling back to the raw string.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = parseValue(raw)
	}
	return out, nil
}

var errNotWatchable = errors.New("storage backend does not support watching")
