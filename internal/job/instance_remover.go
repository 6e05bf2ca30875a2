package job

import (
	"context"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/internal/service"

	"go.uber.org/zap"
)

// removerBatch bounds the teardown work started per pass.
const removerBatch = 16

// InstanceRemover turns removable instances into backend teardowns, oldest
// first, as fast as the provider's removal ceiling allows.
type InstanceRemover struct {
	*Job
	instanceRepo repository.InstanceRepository
	poolRepo     repository.PoolRepository
	providerRepo repository.ProviderRepository
	lifecycle    service.LifecycleService
	admission    service.AdmissionService
}

func NewInstanceRemover(
	job *Job,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.PoolRepository,
	providerRepo repository.ProviderRepository,
	lifecycle service.LifecycleService,
	admission service.AdmissionService,
) *InstanceRemover {
	return &InstanceRemover{
		Job:          job,
		instanceRepo: instanceRepo,
		poolRepo:     poolRepo,
		providerRepo: providerRepo,
		lifecycle:    lifecycle,
		admission:    admission,
	}
}

func (j *InstanceRemover) Run(ctx context.Context) error {
	insts, err := j.instanceRepo.FindRemovables(ctx, removerBatch)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		provider, err := j.providerFor(ctx, inst)
		if err != nil {
			j.logger.WithContext(ctx).Error("provider lookup failed",
				zap.String("uuid", inst.Uuid), zap.Error(err))
			continue
		}
		if provider == nil {
			continue
		}
		ok, err := j.admission.CanStartRemoval(ctx, provider)
		if err != nil {
			j.logger.WithContext(ctx).Warn("removal admission failed",
				zap.String("uuid", inst.Uuid), zap.Error(err))
			continue
		}
		if !ok {
			// ceiling reached, the rest waits for the next pass
			return nil
		}
		if err := j.lifecycle.Remove(ctx, inst); err != nil {
			j.logger.WithContext(ctx).Error("removal failed",
				zap.String("uuid", inst.Uuid), zap.Error(err))
		}
	}
	return nil
}

func (j *InstanceRemover) providerFor(ctx context.Context, inst *model.Instance) (*model.Provider, error) {
	pool, err := j.poolRepo.GetByID(ctx, inst.PoolID)
	if err != nil || pool == nil {
		return nil, err
	}
	return j.providerRepo.GetByID(ctx, pool.ProviderID)
}
