package backend

import (
	"context"
	"time"

	"vdisphere/internal/model"

	"github.com/gorilla/websocket"
)

// TaskState is the outcome every backend operation reports. The set is
// closed; callers handle all three, and anything unexpected routes to error
// rather than being ignored.
type TaskState int8

const (
	TaskRunning TaskState = iota
	TaskFinished
	TaskError
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	case TaskError:
		return "error"
	}
	return "unknown"
}

// Env is the deployment context a backend is bound to. Provider is always
// set; Pool and Publication are set when the operation needs a clone source
// and may be nil for pure state checks or teardown.
type Env struct {
	Provider    *model.Provider
	Pool        *model.Pool
	Publication *model.Publication
}

// Backend drives the instances of one provider. Implementations mutate only
// the instance's UniqueID, FriendlyName and Blob fields; persisting them is
// the caller's job. An operation that cannot complete synchronously returns
// TaskRunning with its continuation serialized in Blob, and is driven to
// completion through CheckState. On TaskError the returned error carries the
// human-readable reason.
//
// Backends are built per operation from their Env. They are not safe for
// concurrent use and must not be shared across operations.
type Backend interface {
	Type() string

	DeployForUser(ctx context.Context, inst *model.Instance) (TaskState, error)
	DeployForCache(ctx context.Context, inst *model.Instance, level int8) (TaskState, error)
	MoveToCache(ctx context.Context, inst *model.Instance, level int8) (TaskState, error)
	CheckState(ctx context.Context, inst *model.Instance) (TaskState, error)
	Destroy(ctx context.Context, inst *model.Instance) (TaskState, error)
	Cancel(ctx context.Context, inst *model.Instance) (TaskState, error)
	Reset(ctx context.Context, inst *model.Instance) (TaskState, error)

	// SuggestedDelay is the recheck cadence while an operation is running
	SuggestedDelay() time.Duration
}

// ConsoleBackend is an optional capability of backends able to hand out a
// live console websocket for an instance.
type ConsoleBackend interface {
	ConsoleDial(ctx context.Context, inst *model.Instance) (*websocket.Conn, error)
}

// PublishBackend is an optional capability of backends that materialize pool
// publications. Publish runs to completion and fills in the publication's
// UniqueID before returning.
type PublishBackend interface {
	Publish(ctx context.Context, pub *model.Publication) error
	DestroyPublication(ctx context.Context, pub *model.Publication) error
}
