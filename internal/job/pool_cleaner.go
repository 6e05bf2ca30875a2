package job

import (
	"context"
	"time"

	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/internal/service"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PoolCleaner does the slow housekeeping: draining retired pools, deleting
// unreferenced publications and purging terminal instance rows past their
// bookkeeping window.
type PoolCleaner struct {
	*Job
	poolRepo        repository.PoolRepository
	instanceRepo    repository.InstanceRepository
	publicationRepo repository.PublicationRepository
	providerRepo    repository.ProviderRepository
	backendReg      *backend.Registry
	lifecycle       service.LifecycleService
	keepInfoTime    time.Duration
}

func NewPoolCleaner(
	job *Job,
	conf *viper.Viper,
	poolRepo repository.PoolRepository,
	instanceRepo repository.InstanceRepository,
	publicationRepo repository.PublicationRepository,
	providerRepo repository.ProviderRepository,
	backendReg *backend.Registry,
	lifecycle service.LifecycleService,
) *PoolCleaner {
	keep := conf.GetDuration("lifecycle.keep_info_time")
	if keep <= 0 {
		keep = 14 * 24 * time.Hour
	}
	return &PoolCleaner{
		Job:             job,
		poolRepo:        poolRepo,
		instanceRepo:    instanceRepo,
		publicationRepo: publicationRepo,
		providerRepo:    providerRepo,
		backendReg:      backendReg,
		lifecycle:       lifecycle,
		keepInfoTime:    keep,
	}
}

func (j *PoolCleaner) Run(ctx context.Context) error {
	if err := j.drainRetiredPools(ctx); err != nil {
		j.logger.WithContext(ctx).Error("pool drain failed", zap.Error(err))
	}
	if err := j.collectPublications(ctx); err != nil {
		j.logger.WithContext(ctx).Error("publication collection failed", zap.Error(err))
	}

	purged, err := j.instanceRepo.DeleteTerminalBefore(ctx, time.Now().Add(-j.keepInfoTime))
	if err != nil {
		return err
	}
	if purged > 0 {
		j.logger.WithContext(ctx).Info("purged terminal instances", zap.Int64("count", purged))
	}
	return nil
}

// drainRetiredPools walks pools in removing status, pushes their remaining
// instances toward teardown and finishes pools that emptied out.
func (j *PoolCleaner) drainRetiredPools(ctx context.Context) error {
	pools, err := j.poolRepo.ListByStatus(ctx, model.PoolStatusRemoving)
	if err != nil {
		return err
	}
	for _, pool := range pools {
		live := []string{
			model.InstanceStatePreparing, model.InstanceStateUsable,
			model.InstanceStateRemovable, model.InstanceStateRemoving,
			model.InstanceStateCanceling, model.InstanceStateError,
		}
		insts, err := j.instanceRepo.ListByPoolAndStates(ctx, pool.Id, live, 0)
		if err != nil {
			return err
		}
		if len(insts) == 0 {
			if err := j.poolRepo.UpdateFields(ctx, pool.Id, map[string]interface{}{
				"status": model.PoolStatusRemoved,
			}); err != nil {
				return err
			}
			j.logger.WithContext(ctx).Info("pool retired", zap.String("uuid", pool.Uuid))
			continue
		}
		for _, inst := range insts {
			var err error
			switch inst.State {
			case model.InstanceStatePreparing:
				err = j.lifecycle.Cancel(ctx, inst)
			case model.InstanceStateUsable:
				err = j.lifecycle.MarkRemovable(ctx, inst)
			case model.InstanceStateError:
				err = j.lifecycle.Remove(ctx, inst)
			default:
				// removable is the remover's queue, the rest is in flight
			}
			if err != nil {
				j.logger.WithContext(ctx).Warn("pool drain step failed",
					zap.String("uuid", inst.Uuid), zap.Error(err))
			}
		}
	}
	return nil
}

// collectPublications deletes removable publications nothing references
// anymore. Templates the system built itself are destroyed on the backend
// first; registered ones are left alone.
func (j *PoolCleaner) collectPublications(ctx context.Context) error {
	statuses := []string{model.PoolStatusActive, model.PoolStatusRemoving}
	for _, status := range statuses {
		pools, err := j.poolRepo.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, pool := range pools {
			pubs, err := j.publicationRepo.ListByPool(ctx, pool.Id)
			if err != nil {
				return err
			}
			for _, pub := range pubs {
				if pub.State != model.PublicationStateRemovable {
					continue
				}
				refs, err := j.publicationRepo.CountInstanceRefs(ctx, pub.Id)
				if err != nil {
					return err
				}
				if refs > 0 {
					continue
				}
				if pub.Managed != 0 {
					if err := j.destroyTemplate(ctx, pool, pub); err != nil {
						j.logger.WithContext(ctx).Warn("template destroy failed, retrying later",
							zap.String("publication", pub.Uuid), zap.Error(err))
						continue
					}
				}
				if err := j.publicationRepo.Delete(ctx, pub.Id); err != nil {
					return err
				}
				j.logger.WithContext(ctx).Info("publication deleted",
					zap.String("pool", pool.Uuid), zap.Int("revision", pub.Revision))
			}
		}
	}
	return nil
}

func (j *PoolCleaner) destroyTemplate(ctx context.Context, pool *model.Pool, pub *model.Publication) error {
	provider, err := j.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil || provider == nil {
		return err
	}
	be, err := j.backendReg.New(&backend.Env{Provider: provider, Pool: pool}, j.logger)
	if err != nil {
		return err
	}
	pb, ok := be.(backend.PublishBackend)
	if !ok {
		return nil
	}
	return pb.DestroyPublication(ctx, pub)
}
