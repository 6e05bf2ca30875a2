package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type schedFixture struct {
	ctx       context.Context
	sched     *Scheduler
	tasks     repository.DelayedTaskRepository
	instances repository.InstanceRepository
}

func newFixture(t *testing.T) *schedFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Instance{}, &model.DelayedTask{}))

	logger := &log.Logger{Logger: zap.NewNop()}
	repo := repository.NewRepository(logger, db, nil)
	taskRepo := repository.NewDelayedTaskRepository(repo)
	instRepo := repository.NewInstanceRepository(repo)
	return &schedFixture{
		ctx:       context.Background(),
		sched:     NewScheduler(taskRepo, instRepo, logger),
		tasks:     taskRepo,
		instances: instRepo,
	}
}

func (f *schedFixture) seedInstance(t *testing.T, uuid, state string) *model.Instance {
	t.Helper()
	inst := &model.Instance{
		Uuid:      uuid,
		PoolID:    1,
		State:     state,
		OsState:   model.OsStatePreparing,
		StateDate: time.Now(),
	}
	require.NoError(t, f.instances.Create(f.ctx, inst))
	return inst
}

func TestScheduleDeduplicatesPerInstance(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "dup-1", model.InstanceStatePreparing)

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, time.Hour))
	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, time.Minute))
	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, time.Second))

	count, err := f.tasks.CountByInstance(f.ctx, inst.Uuid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// the last schedule wins
	task, err := f.tasks.GetByTag(f.ctx, TagFor(TaskTypeStateCheck, inst.Uuid))
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.WithinDuration(t, time.Now().Add(time.Second), task.ExecutionTime, 10*time.Second)
}

func TestRunDueDispatchesOnce(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "due-1", model.InstanceStatePreparing)

	var handled int
	f.sched.RegisterHandler(TaskTypeStateCheck, func(ctx context.Context, task *model.DelayedTask) error {
		handled++
		assert.Equal(t, inst.Uuid, task.InstanceUuid)
		return nil
	})

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, -time.Second))
	assert.Equal(t, 1, f.sched.RunDue(f.ctx))
	assert.Equal(t, 1, handled)

	// the claim consumed the row; a second sweep finds nothing
	assert.Equal(t, 0, f.sched.RunDue(f.ctx))
	assert.Equal(t, 1, handled)
}

func TestRunDueSkipsNotYetDue(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "later-1", model.InstanceStatePreparing)
	f.sched.RegisterHandler(TaskTypeStateCheck, func(ctx context.Context, task *model.DelayedTask) error {
		t.Fatal("a future task must not fire")
		return nil
	})

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, time.Hour))
	assert.Equal(t, 0, f.sched.RunDue(f.ctx))

	count, err := f.tasks.CountByInstance(f.ctx, inst.Uuid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "the entry stays queued until due")
}

func TestStaleTaskIsDropped(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "stale-1", model.InstanceStatePreparing)

	var handled int
	f.sched.RegisterHandler(TaskTypeStateCheck, func(ctx context.Context, task *model.DelayedTask) error {
		handled++
		return nil
	})

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, -time.Second))
	// a newer operation moved the instance on before the poll fired
	require.NoError(t, f.instances.UpdateFields(f.ctx, inst.Id,
		map[string]interface{}{"state": model.InstanceStateCanceling}))

	f.sched.RunDue(f.ctx)
	assert.Zero(t, handled, "a stale transition must not be applied")
}

func TestDeletedInstanceTaskIsDropped(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "gone-1", model.InstanceStatePreparing)

	var handled int
	f.sched.RegisterHandler(TaskTypeStateCheck, func(ctx context.Context, task *model.DelayedTask) error {
		handled++
		return nil
	})

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, -time.Second))
	require.NoError(t, f.instances.Delete(f.ctx, inst.Id))

	f.sched.RunDue(f.ctx)
	assert.Zero(t, handled)
}

func TestCancelRemovesPendingEntry(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "cancel-1", model.InstanceStatePreparing)

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, time.Hour))
	require.NoError(t, f.sched.Cancel(f.ctx, TaskTypeStateCheck, inst.Uuid))

	count, err := f.tasks.CountByInstance(f.ctx, inst.Uuid)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHandlerErrorDoesNotRequeue(t *testing.T) {
	f := newFixture(t)
	inst := f.seedInstance(t, "fail-1", model.InstanceStatePreparing)
	f.sched.RegisterHandler(TaskTypeStateCheck, func(ctx context.Context, task *model.DelayedTask) error {
		return errors.New("backend unreachable")
	})

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, inst, -time.Second))
	assert.Equal(t, 1, f.sched.RunDue(f.ctx))

	// the row was consumed by the claim; recovery is the stuck checker's job
	count, err := f.tasks.CountByInstance(f.ctx, inst.Uuid)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunDueDrainsInOrder(t *testing.T) {
	f := newFixture(t)
	first := f.seedInstance(t, "order-1", model.InstanceStatePreparing)
	second := f.seedInstance(t, "order-2", model.InstanceStatePreparing)

	var order []string
	f.sched.RegisterHandler(TaskTypeStateCheck, func(ctx context.Context, task *model.DelayedTask) error {
		order = append(order, task.InstanceUuid)
		return nil
	})

	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, second, -time.Minute))
	require.NoError(t, f.sched.Schedule(f.ctx, TaskTypeStateCheck, first, -time.Hour))

	assert.Equal(t, 2, f.sched.RunDue(f.ctx))
	assert.Equal(t, []string{"order-1", "order-2"}, order, "oldest due entry first")
}
