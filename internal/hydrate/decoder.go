// Package hydrate turns flat category settings maps into typed structs.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the settings category being decoded.
type Context struct {
	Category string
	Prefix   string
}

func (c Context) label() string {
	if c.Category == "" {
		return "<unnamed>"
	}
	return c.Category
}

// PreHook rewrites the raw settings map before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook validates or adjusts the decoded struct.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces the JSON decoding step.
type CustomDecoder[T any] func(Context, map[string]any) (T, error)

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts category settings into T.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	useNumber    bool
	strictFields bool
	custom       CustomDecoder[T]
}

func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithUseNumber keeps numeric values as json.Number for `any` fields.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.useNumber = true
	}
}

// WithDisallowUnknownFields rejects settings that T does not declare.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.strictFields = true
	}
}

func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs the pre-hooks, decodes settings into T and runs the post-hooks.
// The input map is never mutated.
func (d *Decoder[T]) Decode(ctx Context, settings map[string]any) (T, error) {
	var zero T

	if settings == nil {
		return zero, fmt.Errorf("hydrate: settings are nil for category %q", ctx.label())
	}

	current, err := cloneSettings(settings)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone settings for category %q: %w", ctx.label(), err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for category %q failed: %w", ctx.label(), err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if d.custom != nil {
		result, err = d.custom(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: custom decoder for category %q failed: %w", ctx.label(), err)
		}
	} else {
		buffer, err := json.Marshal(current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: marshal category %q: %w", ctx.label(), err)
		}
		decoder := json.NewDecoder(bytes.NewReader(buffer))
		if d.useNumber {
			decoder.UseNumber()
		}
		if d.strictFields {
			decoder.DisallowUnknownFields()
		}
		if err := decoder.Decode(&result); err != nil {
			return zero, fmt.Errorf("hydrate: decode category %q: %w", ctx.label(), err)
		}
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for category %q failed: %w", ctx.label(), err)
		}
	}

	return result, nil
}

func cloneSettings(settings map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
