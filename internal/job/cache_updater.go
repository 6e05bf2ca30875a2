package job

import (
	"context"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/internal/service"

	"go.uber.org/zap"
)

// CacheUpdater keeps every active pool's spare tiers at their configured
// size. One corrective step per pool per pass: tiers converge over a few
// passes instead of slamming the backend with parallel clones.
type CacheUpdater struct {
	*Job
	poolRepo     repository.PoolRepository
	providerRepo repository.ProviderRepository
	poolCache    service.PoolCacheService
	lifecycle    service.LifecycleService
	admission    service.AdmissionService
}

func NewCacheUpdater(
	job *Job,
	poolRepo repository.PoolRepository,
	providerRepo repository.ProviderRepository,
	poolCache service.PoolCacheService,
	lifecycle service.LifecycleService,
	admission service.AdmissionService,
) *CacheUpdater {
	return &CacheUpdater{
		Job:          job,
		poolRepo:     poolRepo,
		providerRepo: providerRepo,
		poolCache:    poolCache,
		lifecycle:    lifecycle,
		admission:    admission,
	}
}

func (j *CacheUpdater) Run(ctx context.Context) error {
	pools, err := j.poolRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, pool := range pools {
		if err := j.step(ctx, pool); err != nil {
			j.logger.WithContext(ctx).Error("cache step failed",
				zap.String("pool", pool.Uuid), zap.Error(err))
		}
	}
	return nil
}

func (j *CacheUpdater) step(ctx context.Context, pool *model.Pool) error {
	provider, err := j.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return err
	}
	if provider == nil {
		return nil
	}
	decision, err := j.poolCache.Evaluate(ctx, pool, provider, service.CacheDeltas{})
	if err != nil {
		return err
	}

	// growth first, warm tier first: an L1 spare serves a request directly
	if decision.L1 == service.CacheActionGrow {
		return j.grow(ctx, pool, provider, model.CacheLevelL1)
	}
	if decision.L2 == service.CacheActionGrow && decision.L1 != service.CacheActionOverflow {
		return j.grow(ctx, pool, provider, model.CacheLevelL2)
	}

	if decision.L1 == service.CacheActionOverflow {
		victim, err := j.poolCache.PickOverflowVictim(ctx, pool, model.CacheLevelL1)
		if err != nil || victim == nil {
			return err
		}
		// a shrinking L1 can feed a hungry L2 without touching the backend count
		if decision.L2 == service.CacheActionGrow {
			j.logger.WithContext(ctx).Info("demoting spare to second tier",
				zap.String("pool", pool.Uuid), zap.String("uuid", victim.Uuid))
			return j.lifecycle.MoveToCache(ctx, victim, model.CacheLevelL2)
		}
		return j.remove(ctx, pool, provider, victim)
	}
	if decision.L2 == service.CacheActionOverflow {
		victim, err := j.poolCache.PickOverflowVictim(ctx, pool, model.CacheLevelL2)
		if err != nil || victim == nil {
			return err
		}
		return j.remove(ctx, pool, provider, victim)
	}
	return nil
}

func (j *CacheUpdater) grow(ctx context.Context, pool *model.Pool, provider *model.Provider, level int8) error {
	ok, err := j.admission.CanStartCreation(ctx, provider)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	j.logger.WithContext(ctx).Info("growing cache",
		zap.String("pool", pool.Uuid), zap.Int8("level", level))
	_, err = j.lifecycle.CreateCached(ctx, pool, level)
	return err
}

func (j *CacheUpdater) remove(ctx context.Context, pool *model.Pool, provider *model.Provider, victim *model.Instance) error {
	ok, err := j.admission.CanStartRemoval(ctx, provider)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	j.logger.WithContext(ctx).Info("removing overflowing spare",
		zap.String("pool", pool.Uuid), zap.String("uuid", victim.Uuid))
	return j.lifecycle.Remove(ctx, victim)
}
