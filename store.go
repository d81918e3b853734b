package viewstate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

const persistKeyPrefix = "state_"

// Subscriber receives the new value of the path it was registered on.
type Subscriber func(value any)

// WriteOption configures a single Set, UpdateState, Compute or Delete call.
type WriteOption func(*writeMeta)

type writeMeta struct {
	silent bool
	source string
}

// Silent writes the value without notifying subscribers. Use it when the write
// itself reacts to state that was already observed.
func Silent() WriteOption {
	return func(m *writeMeta) {
		m.silent = true
	}
}

// Source tags the write with a provenance label, readable via LastWriter.
func Source(tag string) WriteOption {
	return func(m *writeMeta) {
		m.source = tag
	}
}

func applyWriteOptions(opts []WriteOption) writeMeta {
	meta := writeMeta{}
	for _, opt := range opts {
		if opt != nil {
			opt(&meta)
		}
	}
	return meta
}

type subscription struct {
	id uint64
	fn Subscriber
}

// Store is a path-addressed state tree. Paths are dot separated; writing a
// deeper path keeps siblings under the same parent. Subscriptions fire for
// writes to their exact path only.
//
// All mutations are serialized. Subscribers run on the writer's goroutine
// after the lock is released, in registration order.
type Store struct {
	mu      sync.RWMutex
	root    map[string]any
	writers map[string]string
	subs    map[string][]subscription
	nextSub uint64

	cfg    config
	logger *slog.Logger
	faults FaultReporter
}

// NewStore builds an empty store.
func NewStore(opts ...Option) *Store {
	cfg := applyOptions(opts)
	return &Store{
		root:    map[string]any{},
		writers: map[string]string{},
		subs:    map[string][]subscription{},
		cfg:     cfg,
		logger:  cfg.loggerOrDefault(),
		faults:  cfg.reporter("store"),
	}
}

// Get returns a detached copy of the value at path.
func (s *Store) Get(path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := lookupNode(s.root, segments)
	if !ok {
		return nil, false
	}
	return cloneValue(value), true
}

// Set replaces the value at path.
func (s *Store) Set(path string, value any, opts ...WriteOption) {
	s.Compute(path, func(any, bool) (any, bool) {
		return value, true
	}, opts...)
}

// UpdateState shallow merges partial into the object at path. A missing or
// non-object prior value is treated as an empty object.
func (s *Store) UpdateState(path string, partial map[string]any, opts ...WriteOption) {
	s.Compute(path, func(current any, _ bool) (any, bool) {
		merged := map[string]any{}
		if existing, ok := current.(map[string]any); ok {
			for key, value := range existing {
				merged[key] = value
			}
		}
		for key, value := range partial {
			merged[key] = cloneValue(value)
		}
		return merged, true
	}, opts...)
}

// Compute runs fn with the current value at path while holding the write
// lock and stores its result when write is true. Subscribers are notified
// after the lock is released. fn must not call back into the store.
func (s *Store) Compute(path string, fn func(current any, exists bool) (next any, write bool), opts ...WriteOption) {
	segments, err := splitPath(path)
	if err != nil {
		s.faults.Report(FaultMisuse, "write", path, err)
		return
	}
	if fn == nil {
		return
	}
	meta := applyWriteOptions(opts)

	s.mu.Lock()
	current, exists := lookupNode(s.root, segments)
	next, write := fn(cloneValue(current), exists)
	if !write {
		s.mu.Unlock()
		return
	}
	stored := cloneValue(next)
	assignNode(s.root, segments, stored)
	s.writers[path] = meta.source
	var listeners []subscription
	if !meta.silent {
		listeners = append(listeners, s.subs[path]...)
	}
	s.mu.Unlock()

	s.logger.Debug("state write", slog.String("path", path), slog.String("source", meta.source), slog.Bool("silent", meta.silent))
	s.persist(path)
	s.notify(path, listeners, stored)
}

// Delete removes the node at path and notifies its subscribers with nil.
func (s *Store) Delete(path string, opts ...WriteOption) {
	segments, err := splitPath(path)
	if err != nil {
		s.faults.Report(FaultMisuse, "delete", path, err)
		return
	}
	meta := applyWriteOptions(opts)

	s.mu.Lock()
	removed := removeNode(s.root, segments)
	if !removed {
		s.mu.Unlock()
		return
	}
	s.writers[path] = meta.source
	var listeners []subscription
	if !meta.silent {
		listeners = append(listeners, s.subs[path]...)
	}
	s.mu.Unlock()

	s.persist(path)
	s.notify(path, listeners, nil)
}

// Subscribe registers fn for writes to exactly path. The returned function
// removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(path string, fn Subscriber) func() {
	if _, err := splitPath(path); err != nil || fn == nil {
		if err == nil {
			err = fmt.Errorf("viewstate: nil subscriber")
		}
		s.faults.Report(FaultMisuse, "subscribe", path, err)
		return func() {}
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[path] = append(s.subs[path], subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			current := s.subs[path]
			for i, sub := range current {
				if sub.id != id {
					continue
				}
				remaining := make([]subscription, 0, len(current)-1)
				remaining = append(remaining, current[:i]...)
				remaining = append(remaining, current[i+1:]...)
				if len(remaining) == 0 {
					delete(s.subs, path)
				} else {
					s.subs[path] = remaining
				}
				return
			}
		})
	}
}

// SubscriberCount reports how many callbacks are registered on path.
func (s *Store) SubscriberCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[path])
}

// LastWriter returns the source tag of the most recent write to path.
func (s *Store) LastWriter(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tag, ok := s.writers[path]
	return tag, ok
}

// Snapshot returns a detached copy of the whole tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, _ := cloneValue(s.root).(map[string]any)
	return out
}

// Paths returns every leaf path in lexical order.
func (s *Store) Paths() []string {
	descriptors := s.Describe()
	paths := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		paths = append(paths, d.Path)
	}
	sort.Strings(paths)
	return paths
}

// Restore loads mirrored values from the persistence side-channel. Missing or
// malformed entries are skipped. It returns the number of restored paths.
func (s *Store) Restore() int {
	if s.cfg.storage == nil {
		return 0
	}
	restored := 0
	for _, path := range s.cfg.persistPaths {
		segments, err := splitPath(path)
		if err != nil {
			s.faults.Report(FaultMisuse, "restore", path, err)
			continue
		}
		raw, ok, err := s.cfg.storage.GetItem(persistKeyPrefix + path)
		if err != nil {
			s.faults.Report(FaultPersistence, "restore", path, err)
			continue
		}
		if !ok {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			s.faults.Report(FaultPersistence, "restore", path, err)
			continue
		}
		s.mu.Lock()
		assignNode(s.root, segments, value)
		s.writers[path] = "restore"
		s.mu.Unlock()
		restored++
	}
	return restored
}

func (s *Store) persist(path string) {
	if s.cfg.storage == nil {
		return
	}
	for _, watched := range s.cfg.persistPaths {
		if !related(path, watched) {
			continue
		}
		value, ok := s.Get(watched)
		if !ok {
			if err := s.cfg.storage.RemoveItem(persistKeyPrefix + watched); err != nil {
				s.faults.Report(FaultPersistence, "persist", watched, err)
			}
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			s.faults.Report(FaultPersistence, "persist", watched, err)
			continue
		}
		if err := s.cfg.storage.SetItem(persistKeyPrefix+watched, string(raw)); err != nil {
			s.faults.Report(FaultPersistence, "persist", watched, err)
		}
	}
}

func (s *Store) notify(path string, listeners []subscription, value any) {
	for _, sub := range listeners {
		s.invoke(path, sub.fn, cloneValue(value))
	}
}

func (s *Store) invoke(path string, fn Subscriber, value any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.faults.Report(FaultInternal, "notify", path, fmt.Errorf("subscriber panic: %v", recovered))
		}
	}()
	fn(value)
}
