package service

import (
	"testing"
	"time"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReusesExistingAssignment(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	user := env.seedUser(t)
	existing := env.seedInstance(t, pool, func(i *model.Instance) {
		i.UserID = &user.Id
	})

	got, err := env.allocator.Allocate(env.ctx, pool, user)
	require.NoError(t, err)
	assert.Equal(t, existing.Uuid, got.Uuid)
	assert.Empty(t, env.be.calls, "reuse must not touch the backend")
}

func TestAllocateSpawnsNewIgnoresAssignment(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.SpawnsNew = 1
	})
	user := env.seedUser(t)
	existing := env.seedInstance(t, pool, func(i *model.Instance) {
		i.UserID = &user.Id
	})

	got, err := env.allocator.Allocate(env.ctx, pool, user)
	require.NoError(t, err)
	assert.NotEqual(t, existing.Uuid, got.Uuid)
	assert.Equal(t, 1, env.be.callCount("deploy_for_user"))
}

func TestAllocateRestrainedPool(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)
	user := env.seedUser(t)
	for i := 0; i < 3; i++ {
		env.seedInstance(t, pool, func(i *model.Instance) {
			i.State = model.InstanceStateError
			i.StateDate = time.Now()
		})
	}

	_, err := env.allocator.Allocate(env.ctx, pool, user)
	assert.ErrorIs(t, err, v1.ErrPoolRestrained)
}

func TestAllocateProviderMaintenance(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.Maintenance = 1
	})
	pool := env.seedPool(t, provider)

	_, err := env.allocator.Allocate(env.ctx, pool, env.seedUser(t))
	assert.ErrorIs(t, err, v1.ErrInMaintenance)
}

func TestAllocatePrefersFullyReadySpare(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 2
	})
	user := env.seedUser(t)

	// the settling spare is older, but readiness outranks age
	settling := env.seedInstance(t, pool, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL1
		i.OsState = model.OsStatePreparing
		i.StateDate = time.Now().Add(-time.Hour)
	})
	ready := env.seedInstance(t, pool, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL1
	})

	got, err := env.allocator.Allocate(env.ctx, pool, user)
	require.NoError(t, err)
	assert.Equal(t, ready.Uuid, got.Uuid)
	assert.NotEqual(t, settling.Uuid, got.Uuid)

	row := env.reload(t, got)
	require.NotNil(t, row.UserID)
	assert.Equal(t, user.Id, *row.UserID)
	assert.Equal(t, model.CacheLevelNone, row.CacheLevel)
	assert.Empty(t, env.be.calls)
	assert.Equal(t, []string{model.CacheEventHit}, env.stats.kinds())
}

func TestAllocateFallsBackToSettlingSpare(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
	})
	settling := env.seedInstance(t, pool, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL1
		i.OsState = model.OsStatePreparing
	})

	got, err := env.allocator.Allocate(env.ctx, pool, env.seedUser(t))
	require.NoError(t, err)
	assert.Equal(t, settling.Uuid, got.Uuid)
}

func TestAllocateFallsBackToPreparingSpare(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
	})
	preparing := env.seedInstance(t, pool, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL1
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})

	got, err := env.allocator.Allocate(env.ctx, pool, env.seedUser(t))
	require.NoError(t, err)
	assert.Equal(t, preparing.Uuid, got.Uuid)
	// the claimer inherits a machine that becomes usable asynchronously
	assert.Equal(t, model.InstanceStatePreparing, got.State)
}

func TestAllocateTwoUsersClaimDistinctSpares(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 2
		p.MaxInstances = 10
	})
	env.seedInstance(t, pool, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	env.seedInstance(t, pool, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	userA := env.seedUser(t)
	userB := env.seedUser(t)

	gotA, err := env.allocator.Allocate(env.ctx, pool, userA)
	require.NoError(t, err)
	gotB, err := env.allocator.Allocate(env.ctx, pool, userB)
	require.NoError(t, err)

	assert.NotEqual(t, gotA.Uuid, gotB.Uuid)
	for _, got := range []*model.Instance{gotA, gotB} {
		row := env.reload(t, got)
		assert.Equal(t, model.CacheLevelNone, row.CacheLevel)
		require.NotNil(t, row.UserID)
	}
	assert.Equal(t, userA.Id, *env.reload(t, gotA).UserID)
	assert.Equal(t, userB.Id, *env.reload(t, gotB).UserID)

	left, err := env.instances.CountCached(env.ctx, pool.Id, model.CacheLevelL1)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.Empty(t, env.be.calls)
}

func TestAllocatePoolCeiling(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.MaxInstances = 1
	})
	held := env.seedUser(t)
	env.seedInstance(t, pool, func(i *model.Instance) {
		i.UserID = &held.Id
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})

	_, err := env.allocator.Allocate(env.ctx, pool, env.seedUser(t))
	assert.ErrorIs(t, err, v1.ErrCapacityExceeded)
	assert.Empty(t, env.be.calls)
}

func TestAllocateAdmissionBackpressure(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.ConcurrentCreationLimit = 1
	})
	pool := env.seedPool(t, provider)
	// a sibling pool of the same provider already has one creation in flight
	sibling := env.seedPool(t, provider)
	inflight := env.seedInstance(t, sibling, func(i *model.Instance) {
		i.CacheLevel = model.CacheLevelL2
		i.State = model.InstanceStatePreparing
		i.OsState = model.OsStatePreparing
	})
	user := env.seedUser(t)

	_, err := env.allocator.Allocate(env.ctx, pool, user)
	assert.ErrorIs(t, err, v1.ErrCapacityExceeded)

	// once the preparing count drops, the same request is admitted
	require.NoError(t, env.instances.UpdateFields(env.ctx, inflight.Id,
		map[string]interface{}{"state": model.InstanceStateUsable}))
	got, err := env.allocator.Allocate(env.ctx, pool, user)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatePreparing, got.State)
}

func TestAllocateOriginatesWhenCacheEmpty(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) {
		p.MaxInstances = 10
	})
	user := env.seedUser(t)

	got, err := env.allocator.Allocate(env.ctx, pool, user)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatePreparing, got.State)
	assert.Equal(t, 1, env.be.callCount("deploy_for_user"))
	assert.Equal(t, []string{model.CacheEventMiss}, env.stats.kinds())

	row := env.reload(t, got)
	require.NotNil(t, row.UserID)
	assert.Equal(t, user.Id, *row.UserID)
	assert.Equal(t, model.CacheLevelNone, row.CacheLevel)
	assert.EqualValues(t, 1, env.pendingTasks(t, got.Uuid))
}

func (e *testEnv) seedMeta(t *testing.T, policy, ha string, members map[*model.Pool]int) *model.MetaPool {
	t.Helper()
	meta := &model.MetaPool{
		Uuid:     "meta-" + policy,
		Name:     "aggregate",
		Policy:   policy,
		HaPolicy: ha,
	}
	require.NoError(t, e.metas.Create(e.ctx, meta))
	for pool, prio := range members {
		require.NoError(t, e.metas.AddMember(e.ctx, &model.MetaPoolMember{
			MetaPoolID: meta.Id,
			PoolID:     pool.Id,
			Priority:   prio,
			Enabled:    1,
		}))
	}
	return meta
}

func TestMetaPriorityPolicy(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	poolHigh := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	poolLow := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	env.seedInstance(t, poolHigh, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	wanted := env.seedInstance(t, poolLow, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	meta := env.seedMeta(t, model.MetaPolicyPriority, model.MetaHaDisabled,
		map[*model.Pool]int{poolHigh: 5, poolLow: 1})

	got, fromPool, err := env.allocator.AllocateFromMeta(env.ctx, meta, env.seedUser(t))
	require.NoError(t, err)
	assert.Equal(t, poolLow.Id, fromPool.Id)
	assert.Equal(t, wanted.Uuid, got.Uuid)
}

func TestMetaRandomPolicyRanksEveryActiveMember(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	a := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	b := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	c := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	meta := env.seedMeta(t, model.MetaPolicyRandom, model.MetaHaDisabled,
		map[*model.Pool]int{a: 1, b: 2, c: 3})

	members, err := env.metas.ListMembers(env.ctx, meta.Id)
	require.NoError(t, err)

	// the shuffle must yield a permutation of the members, nothing dropped
	// and nothing duplicated
	ranked, err := env.allocator.(*allocatorService).rankMembers(env.ctx, meta, members,
		map[int64]*model.Pool{a.Id: a, b.Id: b, c.Id: c})
	require.NoError(t, err)
	ids := make([]int64, 0, len(ranked))
	for _, p := range ranked {
		ids = append(ids, p.Id)
	}
	assert.ElementsMatch(t, []int64{a.Id, b.Id, c.Id}, ids)
}

func TestMetaMostFreePolicy(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	busy := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
		p.MaxInstances = 10
	})
	idle := env.seedPool(t, provider, func(p *model.Pool) {
		p.CacheL1 = 1
		p.MaxInstances = 10
	})
	for i := 0; i < 5; i++ {
		u := env.seedUser(t)
		env.seedInstance(t, busy, func(inst *model.Instance) { inst.UserID = &u.Id })
	}
	env.seedInstance(t, busy, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	wanted := env.seedInstance(t, idle, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	meta := env.seedMeta(t, model.MetaPolicyMostFree, model.MetaHaDisabled,
		map[*model.Pool]int{busy: 1, idle: 2})

	got, fromPool, err := env.allocator.AllocateFromMeta(env.ctx, meta, env.seedUser(t))
	require.NoError(t, err)
	assert.Equal(t, idle.Id, fromPool.Id, "the least utilized member must be tried first")
	assert.Equal(t, wanted.Uuid, got.Uuid)
}

func TestMetaExistingAssignmentWins(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	poolA := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	poolB := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 1 })
	env.seedInstance(t, poolA, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	user := env.seedUser(t)
	existing := env.seedInstance(t, poolB, func(i *model.Instance) { i.UserID = &user.Id })
	meta := env.seedMeta(t, model.MetaPolicyPriority, model.MetaHaDisabled,
		map[*model.Pool]int{poolA: 1, poolB: 2})

	got, fromPool, err := env.allocator.AllocateFromMeta(env.ctx, meta, user)
	require.NoError(t, err)
	assert.Equal(t, existing.Uuid, got.Uuid)
	assert.Equal(t, poolB.Id, fromPool.Id)
}

func TestMetaHaReleasesStaleAssignment(t *testing.T) {
	env := newTestEnv(t)
	healthy := env.seedProvider(t)
	down := env.seedProvider(t, func(p *model.Provider) { p.Maintenance = 1 })
	poolUp := env.seedPool(t, healthy, func(p *model.Pool) { p.CacheL1 = 1 })
	poolDown := env.seedPool(t, down)
	env.seedInstance(t, poolUp, func(i *model.Instance) { i.CacheLevel = model.CacheLevelL1 })
	user := env.seedUser(t)
	stale := env.seedInstance(t, poolDown, func(i *model.Instance) { i.UserID = &user.Id })
	meta := env.seedMeta(t, model.MetaPolicyPriority, model.MetaHaEnabled,
		map[*model.Pool]int{poolDown: 1, poolUp: 2})

	got, fromPool, err := env.allocator.AllocateFromMeta(env.ctx, meta, user)
	require.NoError(t, err)
	assert.Equal(t, poolUp.Id, fromPool.Id)
	assert.NotEqual(t, stale.Uuid, got.Uuid)
	// the stale assignment was let go, not handed back
	assert.Equal(t, model.InstanceStateRemoving, env.reload(t, stale).State)
}
