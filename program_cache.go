package viewstate

import "sync"

// ProgramCache stores compiled expression programs keyed by engine and
// expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// NewProgramCache returns a concurrency safe in-memory ProgramCache.
func NewProgramCache() ProgramCache {
	return &memoryProgramCache{}
}

type memoryProgramCache struct {
	programs sync.Map
}

func (c *memoryProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *memoryProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

// WithProgramCache shares compiled programs across evaluators.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}
