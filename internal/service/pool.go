package service

import (
	"context"
	"time"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/duke-git/lancet/v2/random"
	"go.uber.org/zap"
)

type PoolService interface {
	Create(ctx context.Context, req *v1.CreatePoolRequest) (*model.Pool, error)
	Update(ctx context.Context, uuid string, req *v1.UpdatePoolRequest) (*model.Pool, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Pool, error)
	// Describe assembles the API view of one pool, provider and active
	// revision included.
	Describe(ctx context.Context, pool *model.Pool) (*v1.PoolItem, error)
	List(ctx context.Context, req *v1.ListPoolRequest) ([]v1.PoolItem, int64, error)
	// Remove retires the pool; the cleanup job drains its instances before
	// the row turns terminal.
	Remove(ctx context.Context, pool *model.Pool) error

	// Publish cuts a new publication and makes it the pool's active one.
	Publish(ctx context.Context, pool *model.Pool, req *v1.PublishPoolRequest) (*model.Publication, error)
	ListPublications(ctx context.Context, pool *model.Pool) ([]*model.Publication, error)
	Stats(ctx context.Context, pool *model.Pool) (*v1.PoolStats, error)
}

func NewPoolService(
	service *Service,
	poolRepo repository.PoolRepository,
	providerRepo repository.ProviderRepository,
	publicationRepo repository.PublicationRepository,
	instanceRepo repository.InstanceRepository,
	backendReg *backend.Registry,
	lifecycle LifecycleService,
	logger *log.Logger,
) PoolService {
	return &poolService{
		Service:         service,
		poolRepo:        poolRepo,
		providerRepo:    providerRepo,
		publicationRepo: publicationRepo,
		instanceRepo:    instanceRepo,
		backendReg:      backendReg,
		lifecycle:       lifecycle,
		logger:          logger,
	}
}

type poolService struct {
	*Service
	poolRepo        repository.PoolRepository
	providerRepo    repository.ProviderRepository
	publicationRepo repository.PublicationRepository
	instanceRepo    repository.InstanceRepository
	backendReg      *backend.Registry
	lifecycle       LifecycleService
	logger          *log.Logger
}

func (s *poolService) Create(ctx context.Context, req *v1.CreatePoolRequest) (*model.Pool, error) {
	provider, err := s.providerRepo.GetByUuid(ctx, req.ProviderUuid)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, v1.ErrNotFound
	}
	uuid, err := random.UUIdV4()
	if err != nil {
		return nil, err
	}
	pool := &model.Pool{
		Uuid:           uuid,
		Name:           req.Name,
		Comments:       req.Comments,
		ProviderID:     provider.Id,
		TemplateID:     req.TemplateID,
		Visible:        1,
		FallbackAccess: model.FallbackAccessAllow,
		OsManagerType:  "none",
		Status:         model.PoolStatusActive,
	}
	if req.MaxInstances != nil {
		pool.MaxInstances = *req.MaxInstances
	}
	if req.InitialInstances != nil {
		pool.InitialInstances = *req.InitialInstances
	}
	if req.CacheL1 != nil {
		pool.CacheL1 = *req.CacheL1
	}
	if req.CacheL2 != nil {
		pool.CacheL2 = *req.CacheL2
	}
	if req.SpawnsNew != nil {
		pool.SpawnsNew = *req.SpawnsNew
	}
	if req.Visible != nil {
		pool.Visible = *req.Visible
	}
	if req.FallbackAccess != "" {
		pool.FallbackAccess = req.FallbackAccess
	}
	if req.OsManagerType != "" {
		pool.OsManagerType = req.OsManagerType
	}
	if err := s.poolRepo.Create(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func (s *poolService) Update(ctx context.Context, uuid string, req *v1.UpdatePoolRequest) (*model.Pool, error) {
	pool, err := s.poolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, v1.ErrNotFound
	}
	if pool.Status != model.PoolStatusActive {
		return nil, v1.ErrOperationNotAllowed
	}
	if req.Name != nil {
		pool.Name = *req.Name
	}
	if req.Comments != nil {
		pool.Comments = *req.Comments
	}
	if req.MaxInstances != nil {
		pool.MaxInstances = *req.MaxInstances
	}
	if req.InitialInstances != nil {
		pool.InitialInstances = *req.InitialInstances
	}
	if req.CacheL1 != nil {
		pool.CacheL1 = *req.CacheL1
	}
	if req.CacheL2 != nil {
		pool.CacheL2 = *req.CacheL2
	}
	if req.SpawnsNew != nil {
		pool.SpawnsNew = *req.SpawnsNew
	}
	if req.Visible != nil {
		pool.Visible = *req.Visible
	}
	if req.FallbackAccess != nil {
		pool.FallbackAccess = *req.FallbackAccess
	}
	if err := s.poolRepo.Update(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func (s *poolService) GetByUuid(ctx context.Context, uuid string) (*model.Pool, error) {
	pool, err := s.poolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, v1.ErrNotFound
	}
	return pool, nil
}

func (s *poolService) Describe(ctx context.Context, pool *model.Pool) (*v1.PoolItem, error) {
	item := v1.PoolItem{
		Id:               pool.Id,
		Uuid:             pool.Uuid,
		Name:             pool.Name,
		Comments:         pool.Comments,
		TemplateID:       pool.TemplateID,
		MaxInstances:     pool.MaxInstances,
		InitialInstances: pool.InitialInstances,
		CacheL1:          pool.CacheL1,
		CacheL2:          pool.CacheL2,
		SpawnsNew:        pool.SpawnsNew,
		Visible:          pool.Visible,
		FallbackAccess:   pool.FallbackAccess,
		OsManagerType:    pool.OsManagerType,
		Status:           pool.Status,
		CreateTime:       pool.CreateTime,
		UpdateTime:       pool.UpdateTime,
	}
	provider, err := s.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		item.ProviderUuid = provider.Uuid
		item.ProviderName = provider.Name
	}
	if pool.ActivePublicationID != nil {
		pub, err := s.publicationRepo.GetByID(ctx, *pool.ActivePublicationID)
		if err != nil {
			return nil, err
		}
		if pub != nil {
			item.ActiveRevision = pub.Revision
		}
	}
	return &item, nil
}

func (s *poolService) List(ctx context.Context, req *v1.ListPoolRequest) ([]v1.PoolItem, int64, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 10
	}
	pools, total, err := s.poolRepo.ListWithPagination(ctx, page, pageSize, 0, req.Status)
	if err != nil {
		return nil, 0, err
	}

	providers, err := s.providerRepo.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	providersByID := make(map[int64]*model.Provider, len(providers))
	for _, p := range providers {
		providersByID[p.Id] = p
	}

	items := make([]v1.PoolItem, 0, len(pools))
	for _, pool := range pools {
		if req.Visible != nil && pool.Visible != *req.Visible {
			continue
		}
		item := v1.PoolItem{
			Id:               pool.Id,
			Uuid:             pool.Uuid,
			Name:             pool.Name,
			Comments:         pool.Comments,
			TemplateID:       pool.TemplateID,
			MaxInstances:     pool.MaxInstances,
			InitialInstances: pool.InitialInstances,
			CacheL1:          pool.CacheL1,
			CacheL2:          pool.CacheL2,
			SpawnsNew:        pool.SpawnsNew,
			Visible:          pool.Visible,
			FallbackAccess:   pool.FallbackAccess,
			OsManagerType:    pool.OsManagerType,
			Status:           pool.Status,
			CreateTime:       pool.CreateTime,
			UpdateTime:       pool.UpdateTime,
		}
		if p := providersByID[pool.ProviderID]; p != nil {
			item.ProviderUuid = p.Uuid
			item.ProviderName = p.Name
		}
		if pool.ActivePublicationID != nil {
			pub, err := s.publicationRepo.GetByID(ctx, *pool.ActivePublicationID)
			if err != nil {
				return nil, 0, err
			}
			if pub != nil {
				item.ActiveRevision = pub.Revision
			}
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *poolService) Remove(ctx context.Context, pool *model.Pool) error {
	if pool.Status != model.PoolStatusActive {
		return v1.ErrOperationNotAllowed
	}
	if err := s.poolRepo.UpdateFields(ctx, pool.Id, map[string]interface{}{
		"status": model.PoolStatusRemoving,
	}); err != nil {
		return err
	}
	pool.Status = model.PoolStatusRemoving
	s.logger.WithContext(ctx).Info("pool retirement started", zap.String("uuid", pool.Uuid))
	return nil
}

// Publish builds or registers the next template revision and swaps it in.
// The row is seeded in preparing so the cache sizing evaluator holds back
// while a build is running; activation happens in one transaction.
func (s *poolService) Publish(ctx context.Context, pool *model.Pool, req *v1.PublishPoolRequest) (*model.Publication, error) {
	if pool.Status != model.PoolStatusActive {
		return nil, v1.ErrOperationNotAllowed
	}
	preparing, err := s.publicationRepo.ExistsPreparing(ctx, pool.Id)
	if err != nil {
		return nil, err
	}
	if preparing {
		return nil, v1.ErrOperationNotAllowed
	}

	uuid, err := random.UUIdV4()
	if err != nil {
		return nil, err
	}
	maxRev, err := s.publicationRepo.MaxRevision(ctx, pool.Id)
	if err != nil {
		return nil, err
	}
	pub := &model.Publication{
		Uuid:        uuid,
		PoolID:      pool.Id,
		Revision:    maxRev + 1,
		State:       model.PublicationStatePreparing,
		PublishDate: time.Now(),
	}
	if req.TemplateID != "" {
		pub.UniqueID = req.TemplateID
	}
	if err := s.publicationRepo.Create(ctx, pub); err != nil {
		return nil, err
	}

	if pub.UniqueID == "" {
		if err := s.buildPublication(ctx, pool, pub); err != nil {
			pub.State = model.PublicationStateRemovable
			if uerr := s.publicationRepo.Update(ctx, pub); uerr != nil {
				s.logger.WithContext(ctx).Error("failed to park broken publication",
					zap.String("uuid", pub.Uuid), zap.Error(uerr))
			}
			return nil, err
		}
	}

	previousID := pool.ActivePublicationID
	err = s.tm.Transaction(ctx, func(txCtx context.Context) error {
		pub.State = model.PublicationStateUsable
		if err := s.publicationRepo.Update(txCtx, pub); err != nil {
			return err
		}
		if err := s.poolRepo.UpdateFields(txCtx, pool.Id, map[string]interface{}{
			"active_publication_id": pub.Id,
		}); err != nil {
			return err
		}
		if previousID != nil {
			previous, err := s.publicationRepo.GetByID(txCtx, *previousID)
			if err != nil {
				return err
			}
			if previous != nil {
				previous.State = model.PublicationStateRemovable
				if err := s.publicationRepo.Update(txCtx, previous); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	pool.ActivePublicationID = &pub.Id
	s.logger.WithContext(ctx).Info("publication activated",
		zap.String("pool", pool.Uuid),
		zap.Int("revision", pub.Revision))

	s.retireStaleCache(ctx, pool, pub.Id)
	return pub, nil
}

// buildPublication clones the pool's base template into a new immutable one
// through the backend. Synchronous; publishing is a deliberate admin action
// and the clone runs against a powered-off source.
func (s *poolService) buildPublication(ctx context.Context, pool *model.Pool, pub *model.Publication) error {
	provider, err := s.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return err
	}
	if provider == nil {
		return v1.ErrNotFound
	}
	be, err := s.backendReg.New(&backend.Env{Provider: provider, Pool: pool}, s.logger)
	if err != nil {
		return err
	}
	pb, ok := be.(backend.PublishBackend)
	if !ok {
		return v1.ErrOperationNotAllowed
	}
	if err := pb.Publish(ctx, pub); err != nil {
		return err
	}
	pub.Managed = 1
	return nil
}

// retireStaleCache marks unowned spares built from older publications for
// removal. Assigned instances are handled on release by the staleness check.
func (s *poolService) retireStaleCache(ctx context.Context, pool *model.Pool, activePubID int64) {
	insts, err := s.instanceRepo.ListByPoolAndStates(ctx, pool.Id,
		[]string{model.InstanceStateUsable}, 0)
	if err != nil {
		s.logger.WithContext(ctx).Error("stale cache sweep failed",
			zap.String("pool", pool.Uuid), zap.Error(err))
		return
	}
	for _, inst := range insts {
		if inst.UserID != nil || inst.CacheLevel == model.CacheLevelNone {
			continue
		}
		if inst.PublicationID != nil && *inst.PublicationID == activePubID {
			continue
		}
		if err := s.lifecycle.MarkRemovable(ctx, inst); err != nil {
			s.logger.WithContext(ctx).Warn("stale spare not retired",
				zap.String("uuid", inst.Uuid), zap.Error(err))
		}
	}
}

func (s *poolService) ListPublications(ctx context.Context, pool *model.Pool) ([]*model.Publication, error) {
	return s.publicationRepo.ListByPool(ctx, pool.Id)
}

func (s *poolService) Stats(ctx context.Context, pool *model.Pool) (*v1.PoolStats, error) {
	stats := &v1.PoolStats{Uuid: pool.Uuid, Name: pool.Name}
	var err error
	if stats.Assigned, err = s.instanceRepo.CountAssigned(ctx, pool.Id); err != nil {
		return nil, err
	}
	if stats.InUse, err = s.instanceRepo.CountInUse(ctx, pool.Id); err != nil {
		return nil, err
	}
	if stats.CachedL1, err = s.instanceRepo.CountCached(ctx, pool.Id, model.CacheLevelL1); err != nil {
		return nil, err
	}
	if stats.CachedL2, err = s.instanceRepo.CountCached(ctx, pool.Id, model.CacheLevelL2); err != nil {
		return nil, err
	}
	if stats.Preparing, err = s.instanceRepo.CountByPoolAndStates(ctx, pool.Id,
		[]string{model.InstanceStatePreparing, model.InstanceStateCanceling}); err != nil {
		return nil, err
	}
	if stats.Removing, err = s.instanceRepo.CountByPoolAndStates(ctx, pool.Id,
		[]string{model.InstanceStateRemoving, model.InstanceStateRemovable}); err != nil {
		return nil, err
	}
	if stats.Errors, err = s.instanceRepo.CountByPoolAndStates(ctx, pool.Id,
		[]string{model.InstanceStateError}); err != nil {
		return nil, err
	}
	return stats, nil
}
