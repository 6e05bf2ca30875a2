package osmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vdisphere/internal/backend"
	"vdisphere/internal/model"
)

// Manager hooks guest OS preparation into the instance lifecycle. Managers
// are stateless and shared; all per-instance data lives on the instance row.
type Manager interface {
	Type() string

	// CheckState reports guest OS readiness in backend task terms: Running
	// while the guest is still preparing, Finished once ready. Instances only
	// become fully usable when both the backend and the manager agree.
	CheckState(ctx context.Context, inst *model.Instance) (backend.TaskState, error)

	// Release undoes whatever the manager did to the guest. Called once when
	// the instance is torn down.
	Release(ctx context.Context, inst *model.Instance) error

	// IsPersistent managers keep assigned instances alive when their pool
	// publishes a new revision.
	IsPersistent() bool

	// MaxIdle bounds how long an unused instance may sit before it is
	// recycled. Zero disables the bound.
	MaxIdle() time.Duration
}

// Registry maps os manager type tags to shared manager instances.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]Manager
}

func NewRegistry() *Registry {
	r := &Registry{managers: make(map[string]Manager)}
	r.Register(&noneManager{})
	r.Register(&basicManager{})
	r.Register(&persistentManager{})
	return r
}

func (r *Registry) Register(m Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[m.Type()] = m
}

func (r *Registry) Get(typeTag string) (Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[typeTag]
	if !ok {
		return nil, fmt.Errorf("unknown os manager type: %s", typeTag)
	}
	return m, nil
}

// ForPool resolves the pool's configured manager.
func (r *Registry) ForPool(pool *model.Pool) (Manager, error) {
	return r.Get(pool.OsManagerType)
}
