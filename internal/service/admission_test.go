package service

import (
	"testing"

	"vdisphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreationCeiling(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.ConcurrentCreationLimit = 2
	})
	poolA := env.seedPool(t, provider)
	poolB := env.seedPool(t, provider)

	ok, err := env.admission.CanStartCreation(env.ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)

	// preparing instances count across every pool of the provider
	env.seedInstance(t, poolA, func(i *model.Instance) { i.State = model.InstanceStatePreparing })
	env.seedInstance(t, poolB, func(i *model.Instance) { i.State = model.InstanceStatePreparing })

	ok, err = env.admission.CanStartCreation(env.ctx, provider)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreationIgnoresOtherProviders(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.ConcurrentCreationLimit = 1
	})
	env.seedPool(t, provider)
	other := env.seedProvider(t, func(p *model.Provider) {
		p.ConcurrentCreationLimit = 1
	})
	otherPool := env.seedPool(t, other)
	env.seedInstance(t, otherPool, func(i *model.Instance) { i.State = model.InstanceStatePreparing })

	ok, err := env.admission.CanStartCreation(env.ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIgnoreLimitsBypassesCeilings(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.ConcurrentCreationLimit = 0
		p.ConcurrentRemovalLimit = 0
		p.IgnoreLimits = 1
	})

	ok, err := env.admission.CanStartCreation(env.ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.admission.CanStartRemoval(env.ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMaintenanceAdmitsNothing(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.Maintenance = 1
		p.IgnoreLimits = 1
	})

	ok, err := env.admission.CanStartCreation(env.ctx, provider)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.admission.CanStartRemoval(env.ctx, provider)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemovalVerdictIsCached(t *testing.T) {
	env := newTestEnv(t)
	provider := env.seedProvider(t, func(p *model.Provider) {
		p.ConcurrentRemovalLimit = 1
	})
	pool := env.seedPool(t, provider)

	ok, err := env.admission.CanStartRemoval(env.ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, env.cache.sets)

	// the count changed, but the cached verdict still answers
	env.seedInstance(t, pool, func(i *model.Instance) { i.State = model.InstanceStateRemoving })
	ok, err = env.admission.CanStartRemoval(env.ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok, "a verdict inside its TTL is served as-is")
	assert.Equal(t, 1, env.cache.sets, "no recount while the verdict is fresh")

	// expiring the verdict makes the ceiling visible
	require.NoError(t, env.cache.Delete(env.ctx, "admission:removal:"+provider.Uuid))
	ok, err = env.admission.CanStartRemoval(env.ctx, provider)
	require.NoError(t, err)
	assert.False(t, ok)
}
