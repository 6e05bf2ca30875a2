package repository

import (
	"context"
	"testing"
	"time"

	"vdisphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(uuid string, due time.Time) *model.DelayedTask {
	return &model.DelayedTask{
		Tag:           "state_check:" + uuid,
		Type:          "state_check",
		InstanceUuid:  uuid,
		ExpectedState: model.InstanceStatePreparing,
		ExecutionTime: due,
	}
}

func TestScheduleReplacesSameTag(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewDelayedTaskRepository(repo)
	ctx := context.Background()

	require.NoError(t, r.Schedule(ctx, newTask("a", time.Now().Add(time.Hour))))
	require.NoError(t, r.Schedule(ctx, newTask("a", time.Now().Add(time.Minute))))

	count, err := r.CountByInstance(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	task, err := r.GetByTag(ctx, "state_check:a")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.WithinDuration(t, time.Now().Add(time.Minute), task.ExecutionTime, 10*time.Second)
}

func TestClaimDueConsumesTheRow(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewDelayedTaskRepository(repo)
	ctx := context.Background()

	require.NoError(t, r.Schedule(ctx, newTask("b", time.Now().Add(-time.Second))))

	claimed, err := r.ClaimDue(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "b", claimed.InstanceUuid)

	// claimed means gone: no second runner can pick it up
	again, err := r.ClaimDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClaimDueHonorsExecutionTime(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewDelayedTaskRepository(repo)
	ctx := context.Background()

	require.NoError(t, r.Schedule(ctx, newTask("c", time.Now().Add(time.Hour))))

	claimed, err := r.ClaimDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, claimed)

	claimed, err = r.ClaimDue(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "c", claimed.InstanceUuid)
}

func TestClaimDueOldestFirst(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewDelayedTaskRepository(repo)
	ctx := context.Background()

	require.NoError(t, r.Schedule(ctx, newTask("late", time.Now().Add(-time.Minute))))
	require.NoError(t, r.Schedule(ctx, newTask("early", time.Now().Add(-time.Hour))))

	claimed, err := r.ClaimDue(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "early", claimed.InstanceUuid)
}

func TestRemoveByTag(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewDelayedTaskRepository(repo)
	ctx := context.Background()

	require.NoError(t, r.Schedule(ctx, newTask("d", time.Now().Add(time.Hour))))
	require.NoError(t, r.Remove(ctx, "state_check:d"))

	count, err := r.CountByInstance(ctx, "d")
	require.NoError(t, err)
	assert.Zero(t, count)

	// removing a missing tag is a no-op
	assert.NoError(t, r.Remove(ctx, "state_check:d"))
}
