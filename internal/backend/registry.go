package backend

import (
	"fmt"
	"sync"

	"vdisphere/pkg/log"
)

// Factory builds a backend bound to one deployment environment.
type Factory func(env *Env, logger *log.Logger) (Backend, error)

// Registry maps provider type tags to backend factories. Types are
// registered explicitly at construction; there is no implicit discovery.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
	r.Register(ProxmoxType, NewProxmoxBackend)
	return r
}

// Register binds a type tag to a factory, replacing any previous binding.
func (r *Registry) Register(typeTag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeTag] = factory
}

// New builds a backend for the environment. It fails on unknown type tags so
// a mistyped provider row surfaces immediately instead of deferring the
// error to the first operation.
func (r *Registry) New(env *Env, logger *log.Logger) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[env.Provider.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", env.Provider.Type)
	}
	return factory(env, logger)
}

// Knows reports whether a type tag is registered.
func (r *Registry) Knows(typeTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeTag]
	return ok
}

// Types returns the registered type tags, for validation and listing.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}
