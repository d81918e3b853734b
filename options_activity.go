package viewstate

import "github.com/goliatone/go-viewstate/pkg/activity"

// WithActivityHooks attaches hooks that receive operation lifecycle events.
// Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// WithActivityChannel sets the channel stamped on emitted events.
func WithActivityChannel(channel string) Option {
	return func(cfg *config) {
		cfg.activityChannel = channel
	}
}

// ActivityHooks returns a copy of the hooks configured on the tracker.
func (t *OperationTracker) ActivityHooks() activity.Hooks {
	if t == nil {
		return nil
	}
	return cloneActivityHooks(t.hooks)
}

func (c config) activityEmitter() *activity.Emitter {
	return activity.NewEmitter(c.activityHooks, activity.Config{
		Enabled: len(c.activityHooks) > 0,
		Channel: c.activityChannel,
	})
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make(activity.Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
