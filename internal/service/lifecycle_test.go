package service

import (
	"errors"
	"testing"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/osmgr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningOutcomeKeepsSingleRecheck(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	user := env.seedUser(t)

	inst, err := env.lifecycle.CreateAssigned(env.ctx, pool, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.pendingTasks(t, inst.Uuid))

	// every further RUNNING poll replaces the entry instead of piling up
	for i := 0; i < 3; i++ {
		require.NoError(t, env.lifecycle.CheckNow(env.ctx, env.reload(t, inst)))
		assert.EqualValues(t, 1, env.pendingTasks(t, inst.Uuid))
	}
}

func TestErrorOutcomeIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})
	env.be.checkOutcome = backend.TaskError
	env.be.checkErr = errors.New("clone failed: storage full")

	require.NoError(t, env.lifecycle.CheckNow(env.ctx, inst))

	row := env.reload(t, inst)
	assert.Equal(t, model.InstanceStateError, row.State)
	assert.Equal(t, "clone failed: storage full", row.Reason)
	assert.Zero(t, env.pendingTasks(t, inst.Uuid), "errors are never rescheduled")
}

func TestFinishedFromPreparingBecomesUsable(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	env.seedPublication(t, pool, true)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})
	env.be.checkOutcome = backend.TaskFinished

	require.NoError(t, env.lifecycle.CheckNow(env.ctx, inst))

	row := env.reload(t, inst)
	assert.Equal(t, model.InstanceStateUsable, row.State)
	assert.Equal(t, model.OsStateUsable, row.OsState)
}

func TestFinishedOnStalePublicationBecomesRemovable(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	old := env.seedPublication(t, pool, false)
	env.seedPublication(t, pool, true)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
		i.PublicationID = &old.Id
	})
	env.be.checkOutcome = backend.TaskFinished

	require.NoError(t, env.lifecycle.CheckNow(env.ctx, inst))

	assert.Equal(t, model.InstanceStateRemovable, env.reload(t, inst).State)
}

func TestStalePublicationPersistentWorkloadStaysUsable(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.OsManagerType = osmgr.TypePersistent
	})
	old := env.seedPublication(t, pool, false)
	env.seedPublication(t, pool, true)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
		i.PublicationID = &old.Id
		i.CommsEndpoint = "https://10.0.0.5:43910"
	})
	env.be.checkOutcome = backend.TaskFinished

	require.NoError(t, env.lifecycle.CheckNow(env.ctx, inst))

	assert.Equal(t, model.InstanceStateUsable, env.reload(t, inst).State)
}

func TestOsManagerGatesReadiness(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.OsManagerType = osmgr.TypeBasic
	})
	env.seedPublication(t, pool, true)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})
	env.be.checkOutcome = backend.TaskFinished

	// backend done but the guest has not announced itself yet
	require.NoError(t, env.lifecycle.CheckNow(env.ctx, inst))
	row := env.reload(t, inst)
	assert.Equal(t, model.InstanceStatePreparing, row.State)
	assert.Equal(t, model.OsStatePreparing, row.OsState)

	// the agent's ready callback re-enters the finalizer
	require.NoError(t, env.lifecycle.NotifyReady(env.ctx, row, "10.0.0.5", "https://10.0.0.5:43910", "4.0.0"))
	row = env.reload(t, inst)
	assert.Equal(t, model.InstanceStateUsable, row.State)
	assert.Equal(t, model.OsStateUsable, row.OsState)
}

func TestCancelDuringPreparingFinalizesCanceled(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})

	require.NoError(t, env.lifecycle.Cancel(env.ctx, inst))
	row := env.reload(t, inst)
	assert.Equal(t, model.InstanceStateCanceling, row.State)
	assert.Equal(t, 1, env.be.callCount("cancel"))
	assert.EqualValues(t, 1, env.pendingTasks(t, inst.Uuid))

	// whatever the backend finishes with, the instance never surfaces as usable
	env.be.checkOutcome = backend.TaskFinished
	require.NoError(t, env.lifecycle.CheckNow(env.ctx, row))
	row = env.reload(t, inst)
	assert.Equal(t, model.InstanceStateCanceled, row.State)
	assert.Zero(t, env.pendingTasks(t, inst.Uuid))
}

func TestRemoveFromUsable(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	user := env.seedUser(t)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.UserID = &user.Id
	})

	require.NoError(t, env.lifecycle.Remove(env.ctx, inst))
	assert.Equal(t, model.InstanceStateRemoving, env.reload(t, inst).State)
	assert.Equal(t, 1, env.be.callCount("destroy"))

	env.be.checkOutcome = backend.TaskFinished
	require.NoError(t, env.lifecycle.CheckNow(env.ctx, env.reload(t, inst)))
	assert.Equal(t, model.InstanceStateRemoved, env.reload(t, inst).State)
	assert.Zero(t, env.pendingTasks(t, inst.Uuid))
}

func TestRemoveFromTerminalStateRefused(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.State = model.InstanceStateRemoved
	})

	err := env.lifecycle.Remove(env.ctx, inst)
	assert.ErrorIs(t, err, v1.ErrOperationNotAllowed)
}

func TestUnexpectedCompletionRoutesToError(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	inst := env.seedInstance(t, pool) // already usable, nothing should be running
	env.be.checkOutcome = backend.TaskFinished

	require.NoError(t, env.lifecycle.CheckNow(env.ctx, inst))

	row := env.reload(t, inst)
	assert.Equal(t, model.InstanceStateError, row.State)
	assert.Contains(t, row.Reason, "unexpected task completion")
}

func TestReleaseRepurposesIntoCache(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
	})
	env.seedPublication(t, pool, true)
	user := env.seedUser(t)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.UserID = &user.Id
		i.InUse = 1
	})

	require.NoError(t, env.lifecycle.Release(env.ctx, inst))

	row := env.reload(t, inst)
	assert.Nil(t, row.UserID)
	assert.Equal(t, model.CacheLevelL1, row.CacheLevel)
	assert.Equal(t, model.InstanceStateUsable, row.State)
	assert.Equal(t, model.OsStateUsable, row.OsState, "the machine keeps running, so the spare is fully ready")
	assert.Zero(t, row.InUse)
	assert.Zero(t, env.be.callCount("destroy"), "repurposing spares the backend round-trip")

	// the ended assignment stays on record as a terminal placeholder
	removed, err := env.instances.CountByPoolAndStates(env.ctx, pool.Id,
		[]string{model.InstanceStateRemoved})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestReleaseDestroysWhenCacheIsFull(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
	})
	env.seedPublication(t, pool, true)
	env.seedInstance(t, pool, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL1
	})
	user := env.seedUser(t)
	inst := env.seedInstance(t, pool, func(i *model.Instance) {
		i.UserID = &user.Id
	})

	require.NoError(t, env.lifecycle.Release(env.ctx, inst))

	assert.Equal(t, model.InstanceStateRemoving, env.reload(t, inst).State)
	assert.Equal(t, 1, env.be.callCount("destroy"))
}

func TestMoveToCacheGoesThroughPreparing(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
		p.CacheL2 = 1
	})
	spare := env.seedInstance(t, pool, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL1
	})

	require.NoError(t, env.lifecycle.MoveToCache(env.ctx, spare, model.CacheLevelL2))

	row := env.reload(t, spare)
	assert.Equal(t, model.InstanceStatePreparing, row.State)
	assert.Equal(t, model.CacheLevelL2, row.CacheLevel)
	assert.Equal(t, 1, env.be.callCount("move_to_cache"))
	assert.EqualValues(t, 1, env.pendingTasks(t, spare.Uuid))
}
