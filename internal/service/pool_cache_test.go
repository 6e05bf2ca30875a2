package service

import (
	"testing"
	"time"

	"vdisphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTiers fills a pool with the given occupancy.
func seedTiers(t *testing.T, env *testEnv, pool *model.Pool, l1, l2, assigned int) {
	t.Helper()
	for i := 0; i < l1; i++ {
		env.seedInstance(t, pool, func(inst *model.Instance) { inst.CacheLevel = model.CacheLevelL1 })
	}
	for i := 0; i < l2; i++ {
		env.seedInstance(t, pool, func(inst *model.Instance) { inst.CacheLevel = model.CacheLevelL2 })
	}
	for i := 0; i < assigned; i++ {
		u := env.seedUser(t)
		env.seedInstance(t, pool, func(inst *model.Instance) { inst.UserID = &u.Id })
	}
}

func TestEvaluateTierTargets(t *testing.T) {
	tests := []struct {
		name                 string
		targetL1, targetL2   int
		initial, max         int
		l1, l2, assigned     int
		deltas               CacheDeltas
		wantL1, wantL2       CacheAction
	}{
		{
			name:     "under both targets",
			targetL1: 2, targetL2: 1,
			wantL1: CacheActionGrow, wantL2: CacheActionGrow,
		},
		{
			name:     "exactly on target",
			targetL1: 2, targetL2: 1,
			l1: 2, l2: 1,
			wantL1: CacheActionNone, wantL2: CacheActionNone,
		},
		{
			name:     "over both targets",
			targetL1: 1, targetL2: 1,
			l1: 3, l2: 2,
			wantL1: CacheActionOverflow, wantL2: CacheActionOverflow,
		},
		{
			name:     "initial instances pull the first level up",
			targetL1: 1, initial: 5,
			l1: 1, assigned: 2,
			wantL1: CacheActionGrow,
		},
		{
			name:     "assigned instances satisfy the initial bound",
			targetL1: 1, initial: 3,
			l1: 1, assigned: 4,
			wantL1: CacheActionNone,
		},
		{
			name:     "ceiling blocks growth",
			targetL1: 3, max: 4,
			l1: 1, assigned: 3,
			wantL1: CacheActionNone,
		},
		{
			name:     "past the ceiling sheds spares",
			targetL1: 1, max: 2,
			l1: 1, assigned: 2,
			wantL1: CacheActionOverflow,
		},
		{
			name:     "past the ceiling never grows",
			targetL1: 1, max: 2,
			assigned: 3,
			wantL1:   CacheActionOverflow,
		},
		{
			name:     "hypothetical release still wants the spare",
			targetL1: 1,
			assigned: 1,
			deltas:   CacheDeltas{Assigned: -1},
			wantL1:   CacheActionGrow,
		},
		{
			name:     "hypothetical promotion would overflow",
			targetL1: 1,
			l1:       1, assigned: 1,
			deltas: CacheDeltas{L1: 1, Assigned: -1},
			wantL1: CacheActionOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			provider := env.seedProvider(t)
			pool := env.seedPool(t, provider, func(p *model.Pool) {
				p.CacheL1 = tt.targetL1
				p.CacheL2 = tt.targetL2
				p.InitialInstances = tt.initial
				p.MaxInstances = tt.max
			})
			seedTiers(t, env, pool, tt.l1, tt.l2, tt.assigned)

			decision, err := env.poolCache.Evaluate(env.ctx, pool, provider, tt.deltas)
			require.NoError(t, err)
			assert.Equal(t, tt.wantL1, decision.L1, "first level")
			assert.Equal(t, tt.wantL2, decision.L2, "second level")
		})
	}
}

func TestEvaluateShortCircuits(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider)
	}{
		{
			name: "no cache configured",
			setup: func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider) {
				pool.CacheL1 = 0
				pool.InitialInstances = 0
				require.NoError(t, env.pools.Update(env.ctx, pool))
			},
		},
		{
			name: "pool not active",
			setup: func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider) {
				pool.Status = model.PoolStatusRemoving
				require.NoError(t, env.pools.Update(env.ctx, pool))
			},
		},
		{
			name: "provider in maintenance",
			setup: func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider) {
				provider.Maintenance = 1
			},
		},
		{
			name: "nothing to clone from",
			setup: func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider) {
				pool.ActivePublicationID = nil
				pool.TemplateID = ""
				require.NoError(t, env.pools.Update(env.ctx, pool))
			},
		},
		{
			name: "mid republish",
			setup: func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider) {
				env.seedPublication(t, pool, false, func(p *model.Publication) {
					p.State = model.PublicationStatePreparing
				})
			},
		},
		{
			name: "restrained by recent errors",
			setup: func(t *testing.T, env *testEnv, pool *model.Pool, provider *model.Provider) {
				for i := 0; i < 3; i++ {
					env.seedInstance(t, pool, func(inst *model.Instance) {
						inst.State = model.InstanceStateError
						inst.StateDate = time.Now()
					})
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			provider := env.seedProvider(t)
			pool := env.seedPool(t, provider, func(p *model.Pool) {
				p.CacheL1 = 2 // would otherwise demand growth
			})
			tt.setup(t, env, pool, provider)

			decision, err := env.poolCache.Evaluate(env.ctx, pool, provider, CacheDeltas{})
			require.NoError(t, err)
			assert.Equal(t, CacheActionNone, decision.L1)
			assert.Equal(t, CacheActionNone, decision.L2)
		})
	}
}

func TestIsRestrainedWindow(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider)

	// two recent errors are tolerated
	for i := 0; i < 2; i++ {
		env.seedInstance(t, pool, func(inst *model.Instance) {
			inst.State = model.InstanceStateError
			inst.StateDate = time.Now()
		})
	}
	restrained, err := env.poolCache.IsRestrained(env.ctx, pool)
	require.NoError(t, err)
	assert.False(t, restrained)

	// an old error outside the window does not tip it over
	env.seedInstance(t, pool, func(inst *model.Instance) {
		inst.State = model.InstanceStateError
		inst.StateDate = time.Now().Add(-time.Hour)
	})
	restrained, err = env.poolCache.IsRestrained(env.ctx, pool)
	require.NoError(t, err)
	assert.False(t, restrained)

	// a third recent one does
	env.seedInstance(t, pool, func(inst *model.Instance) {
		inst.State = model.InstanceStateError
		inst.StateDate = time.Now()
	})
	restrained, err = env.poolCache.IsRestrained(env.ctx, pool)
	require.NoError(t, err)
	assert.True(t, restrained)
}

func TestCountsSkipTerminalRows(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t)
	pool := env.seedPool(t, provider, func(p *model.Pool) { p.CacheL1 = 2 })
	seedTiers(t, env, pool, 2, 1, 1)
	env.seedInstance(t, pool, func(inst *model.Instance) {
		inst.CacheLevel = model.CacheLevelL1
		inst.State = model.InstanceStateRemoved
	})

	counts, err := env.poolCache.Counts(env.ctx, pool)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts.L1, "terminal rows do not occupy the tier")
	assert.EqualValues(t, 1, counts.L2)
	assert.EqualValues(t, 1, counts.Assigned)
}
