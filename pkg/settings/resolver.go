// Package settings resolves per-category preferences across three tiers:
// a per-document override, a global default and a baseline derived from the
// keys currently known to the caller. It also stores scalar category
// settings under "<prefix>_<field>" keys.
//
// All state lives in a kv.Storage side-channel. Reads never fail: missing,
// corrupt or mistyped entries are logged and treated as absent so resolution
// falls through to the next tier.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/goliatone/go-viewstate/pkg/kv"
)

var (
	// ErrInvalidCategory is returned for blank category names.
	ErrInvalidCategory = errors.New("settings: invalid category")
	// ErrInvalidDocument is returned for blank document keys.
	ErrInvalidDocument = errors.New("settings: invalid document key")
	// ErrUnknownCategory is returned for scalar categories never registered.
	ErrUnknownCategory = errors.New("settings: unknown category")
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithFaultHandler observes storage faults swallowed during reads.
func WithFaultHandler(handler viewstate.FaultHandler) Option {
	return func(r *Resolver) {
		r.faultHandler = handler
	}
}

// WithActivityHooks emits preference events to hooks.
func WithActivityHooks(hooks activity.Hooks) Option {
	return func(r *Resolver) {
		r.hooks = append(activity.Hooks(nil), hooks...)
	}
}

// WithActivityChannel sets the channel stamped on emitted events.
func WithActivityChannel(channel string) Option {
	return func(r *Resolver) {
		r.channel = channel
	}
}

// WithActor sets the actor recorded on emitted events.
func WithActor(actorID string) Option {
	return func(r *Resolver) {
		r.actor = actorID
	}
}

// WithPositionalFunc replaces the rule deciding which keys are positional.
func WithPositionalFunc(fn PositionalFunc) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.positional = fn
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver owns preference and scalar settings for one storage side-channel.
// It is safe for concurrent use.
type Resolver struct {
	mu         sync.Mutex
	storage    kv.Storage
	universes  map[string][]string
	categories map[string]Category

	logger       *slog.Logger
	faultHandler viewstate.FaultHandler
	faults       viewstate.FaultReporter
	hooks        activity.Hooks
	channel      string
	actor        string
	emitter      *activity.Emitter
	positional   PositionalFunc
	now          func() time.Time
}

// NewResolver builds a resolver over storage. A nil storage uses an
// in-memory side-channel.
func NewResolver(storage kv.Storage, opts ...Option) *Resolver {
	r := &Resolver{
		storage:    storage,
		universes:  map[string][]string{},
		categories: map[string]Category{},
		positional: IsPositional,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.storage == nil {
		r.storage = kv.NewMemory(nil)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	r.faults = viewstate.FaultReporter{
		Logger:    r.logger,
		Handler:   r.faultHandler,
		Component: "settings",
	}
	r.emitter = activity.NewEmitter(r.hooks, activity.Config{
		Enabled: len(r.hooks) > 0,
		Channel: r.channel,
	})
	return r
}

// Storage returns the side-channel backing the resolver.
func (r *Resolver) Storage() kv.Storage {
	return r.storage
}

func (r *Resolver) emit(event activity.Event) {
	if !r.emitter.Enabled() {
		return
	}
	if err := r.emitter.Emit(context.Background(), event); err != nil {
		r.faults.Report(viewstate.FaultInternal, "emit", event.ObjectID, err)
	}
}

func (r *Resolver) rememberUniverse(category, document string, universe []string) {
	if len(universe) == 0 {
		return
	}
	r.mu.Lock()
	r.universes[universeKey(category, document)] = append([]string(nil), universe...)
	r.mu.Unlock()
}

func (r *Resolver) rememberedUniverse(category, document string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.universes[universeKey(category, document)]...)
}

func universeKey(category, document string) string {
	return category + "\x00" + document
}

func cleanCategory(category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return "", ErrInvalidCategory
	}
	return category, nil
}
