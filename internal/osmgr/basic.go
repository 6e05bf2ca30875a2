package osmgr

import (
	"context"
	"time"

	"vdisphere/internal/backend"
	"vdisphere/internal/model"
)

// Built-in os manager type tags.
const (
	TypeNone       = "none"
	TypeBasic      = "basic"
	TypePersistent = "persistent"
)

// noneManager is for pools without guest-side preparation. Instances are
// ready as soon as the backend finishes.
type noneManager struct{}

func (m *noneManager) Type() string { return TypeNone }

func (m *noneManager) CheckState(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	return backend.TaskFinished, nil
}

func (m *noneManager) Release(ctx context.Context, inst *model.Instance) error {
	return nil
}

func (m *noneManager) IsPersistent() bool { return false }

func (m *noneManager) MaxIdle() time.Duration { return 0 }

// basicManager waits for the guest agent to announce itself. The agent ready
// callback fills in the instance's comms endpoint; until then the guest is
// still booting.
type basicManager struct{}

func (m *basicManager) Type() string { return TypeBasic }

func (m *basicManager) CheckState(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	if inst.CommsEndpoint == "" {
		return backend.TaskRunning, nil
	}
	return backend.TaskFinished, nil
}

func (m *basicManager) Release(ctx context.Context, inst *model.Instance) error {
	return nil
}

func (m *basicManager) IsPersistent() bool { return false }

func (m *basicManager) MaxIdle() time.Duration { return 0 }

// persistentManager behaves like basicManager but marks assigned instances
// as surviving publication swaps: users keep the exact machine they were
// given until they let go of it themselves.
type persistentManager struct{}

func (m *persistentManager) Type() string { return TypePersistent }

func (m *persistentManager) CheckState(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	if inst.CommsEndpoint == "" {
		return backend.TaskRunning, nil
	}
	return backend.TaskFinished, nil
}

func (m *persistentManager) Release(ctx context.Context, inst *model.Instance) error {
	return nil
}

func (m *persistentManager) IsPersistent() bool { return true }

func (m *persistentManager) MaxIdle() time.Duration { return 0 }
