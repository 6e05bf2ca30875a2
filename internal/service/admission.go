package service

import (
	"context"
	"fmt"
	"time"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"go.uber.org/zap"
)

// removalVerdictTTL bounds how stale the cached removal verdict may be. A
// few extra removals slipping through while the cache ages out is harmless;
// recounting on every candidate is not.
const removalVerdictTTL = 30 * time.Second

// AdmissionService enforces the per-provider concurrency ceilings. Creations
// and removals are admitted independently; a provider in maintenance admits
// nothing.
type AdmissionService interface {
	CanStartCreation(ctx context.Context, provider *model.Provider) (bool, error)
	CanStartRemoval(ctx context.Context, provider *model.Provider) (bool, error)
}

func NewAdmissionService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	cacheRepo repository.CacheRepository,
	logger *log.Logger,
) AdmissionService {
	return &admissionService{
		Service:      service,
		instanceRepo: instanceRepo,
		cacheRepo:    cacheRepo,
		logger:       logger,
	}
}

type admissionService struct {
	*Service
	instanceRepo repository.InstanceRepository
	cacheRepo    repository.CacheRepository
	logger       *log.Logger
}

func (s *admissionService) CanStartCreation(ctx context.Context, provider *model.Provider) (bool, error) {
	if provider.Maintenance != 0 {
		return false, nil
	}
	if provider.IgnoreLimits != 0 {
		return true, nil
	}
	preparing, err := s.instanceRepo.CountByProviderAndStates(ctx, provider.Id,
		[]string{model.InstanceStatePreparing})
	if err != nil {
		return false, err
	}
	return preparing < int64(provider.ConcurrentCreationLimit), nil
}

// CanStartRemoval checks the removal ceiling. The verdict is cached briefly:
// the cleanup jobs consult it once per candidate and the count only moves by
// one per admitted removal.
func (s *admissionService) CanStartRemoval(ctx context.Context, provider *model.Provider) (bool, error) {
	if provider.Maintenance != 0 {
		return false, nil
	}
	if provider.IgnoreLimits != 0 {
		return true, nil
	}

	key := fmt.Sprintf("admission:removal:%s", provider.Uuid)
	if val, ok, err := s.cacheRepo.Get(ctx, key); err != nil {
		// cache trouble degrades to recomputing, never to refusing
		s.logger.WithContext(ctx).Warn("removal verdict cache read failed", zap.Error(err))
	} else if ok {
		return val == "1", nil
	}

	removing, err := s.instanceRepo.CountByProviderAndStates(ctx, provider.Id,
		[]string{model.InstanceStateRemoving})
	if err != nil {
		return false, err
	}
	admitted := removing < int64(provider.ConcurrentRemovalLimit)

	val := "0"
	if admitted {
		val = "1"
	}
	if err := s.cacheRepo.Set(ctx, key, val, removalVerdictTTL); err != nil {
		s.logger.WithContext(ctx).Warn("removal verdict cache write failed", zap.Error(err))
	}
	return admitted, nil
}
