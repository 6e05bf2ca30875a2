package service

import (
	"context"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/duke-git/lancet/v2/random"
)

type ProviderService interface {
	Create(ctx context.Context, req *v1.CreateProviderRequest) (*model.Provider, error)
	Update(ctx context.Context, uuid string, req *v1.UpdateProviderRequest) (*model.Provider, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Provider, error)
	List(ctx context.Context) ([]*model.Provider, error)
}

func NewProviderService(
	service *Service,
	providerRepo repository.ProviderRepository,
	backendReg *backend.Registry,
	logger *log.Logger,
) ProviderService {
	return &providerService{
		Service:      service,
		providerRepo: providerRepo,
		backendReg:   backendReg,
		logger:       logger,
	}
}

type providerService struct {
	*Service
	providerRepo repository.ProviderRepository
	backendReg   *backend.Registry
	logger       *log.Logger
}

func (s *providerService) Create(ctx context.Context, req *v1.CreateProviderRequest) (*model.Provider, error) {
	if !s.backendReg.Knows(req.Type) {
		return nil, v1.ErrBadRequest
	}
	uuid, err := random.UUIdV4()
	if err != nil {
		return nil, err
	}
	provider := &model.Provider{
		Uuid:                    uuid,
		Name:                    req.Name,
		Type:                    req.Type,
		Config:                  req.Config,
		Comments:                req.Comments,
		ConcurrentCreationLimit: 10,
		ConcurrentRemovalLimit:  8,
	}
	if req.ConcurrentCreationLimit != nil {
		provider.ConcurrentCreationLimit = *req.ConcurrentCreationLimit
	}
	if req.ConcurrentRemovalLimit != nil {
		provider.ConcurrentRemovalLimit = *req.ConcurrentRemovalLimit
	}
	if req.IgnoreLimits != nil {
		provider.IgnoreLimits = *req.IgnoreLimits
	}
	if err := s.providerRepo.Create(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *providerService) Update(ctx context.Context, uuid string, req *v1.UpdateProviderRequest) (*model.Provider, error) {
	provider, err := s.providerRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, v1.ErrNotFound
	}
	if req.Name != nil {
		provider.Name = *req.Name
	}
	if req.Config != nil {
		provider.Config = *req.Config
	}
	if req.Comments != nil {
		provider.Comments = *req.Comments
	}
	if req.ConcurrentCreationLimit != nil {
		provider.ConcurrentCreationLimit = *req.ConcurrentCreationLimit
	}
	if req.ConcurrentRemovalLimit != nil {
		provider.ConcurrentRemovalLimit = *req.ConcurrentRemovalLimit
	}
	if req.IgnoreLimits != nil {
		provider.IgnoreLimits = *req.IgnoreLimits
	}
	if req.Maintenance != nil {
		provider.Maintenance = *req.Maintenance
	}
	if err := s.providerRepo.Update(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *providerService) GetByUuid(ctx context.Context, uuid string) (*model.Provider, error) {
	provider, err := s.providerRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, v1.ErrNotFound
	}
	return provider, nil
}

func (s *providerService) List(ctx context.Context) ([]*model.Provider, error) {
	return s.providerRepo.List(ctx)
}
