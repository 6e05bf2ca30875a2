package backend

import (
	"context"
	"testing"
	"time"

	"vdisphere/internal/model"
	"vdisphere/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nullBackend struct{}

func (nullBackend) Type() string { return "null" }
func (nullBackend) DeployForUser(ctx context.Context, inst *model.Instance) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) DeployForCache(ctx context.Context, inst *model.Instance, level int8) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) MoveToCache(ctx context.Context, inst *model.Instance, level int8) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) CheckState(ctx context.Context, inst *model.Instance) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) Destroy(ctx context.Context, inst *model.Instance) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) Cancel(ctx context.Context, inst *model.Instance) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) Reset(ctx context.Context, inst *model.Instance) (TaskState, error) {
	return TaskFinished, nil
}
func (nullBackend) SuggestedDelay() time.Duration { return time.Second }

func TestRegistryDispatchesOnTypeTag(t *testing.T) {
	logger := &log.Logger{Logger: zap.NewNop()}
	reg := NewRegistry(logger)
	reg.Register("null", func(env *Env, l *log.Logger) (Backend, error) {
		return nullBackend{}, nil
	})

	be, err := reg.New(&Env{Provider: &model.Provider{Type: "null"}}, logger)
	require.NoError(t, err)
	assert.Equal(t, "null", be.Type())
	assert.True(t, reg.Knows("null"))
	assert.True(t, reg.Knows(ProxmoxType), "the built-in backend is always registered")
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	logger := &log.Logger{Logger: zap.NewNop()}
	reg := NewRegistry(logger)

	_, err := reg.New(&Env{Provider: &model.Provider{Type: "vmware"}}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
	assert.False(t, reg.Knows("vmware"))
}

func TestTaskStateString(t *testing.T) {
	assert.Equal(t, "running", TaskRunning.String())
	assert.Equal(t, "finished", TaskFinished.String())
	assert.Equal(t, "error", TaskError.String())
	assert.Equal(t, "unknown", TaskState(9).String())
}
