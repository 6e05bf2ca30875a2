package service

import (
	"context"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/duke-git/lancet/v2/random"
)

type MetaPoolService interface {
	Create(ctx context.Context, req *v1.CreateMetaPoolRequest) (*model.MetaPool, error)
	Update(ctx context.Context, uuid string, req *v1.UpdateMetaPoolRequest) (*model.MetaPool, error)
	GetByUuid(ctx context.Context, uuid string) (*model.MetaPool, error)
	List(ctx context.Context) ([]v1.MetaPoolItem, error)
	Delete(ctx context.Context, uuid string) error
}

func NewMetaPoolService(
	service *Service,
	metaPoolRepo repository.MetaPoolRepository,
	poolRepo repository.PoolRepository,
	logger *log.Logger,
) MetaPoolService {
	return &metaPoolService{
		Service:      service,
		metaPoolRepo: metaPoolRepo,
		poolRepo:     poolRepo,
		logger:       logger,
	}
}

type metaPoolService struct {
	*Service
	metaPoolRepo repository.MetaPoolRepository
	poolRepo     repository.PoolRepository
	logger       *log.Logger
}

func (s *metaPoolService) Create(ctx context.Context, req *v1.CreateMetaPoolRequest) (*model.MetaPool, error) {
	members, err := s.resolveMembers(ctx, req.Members)
	if err != nil {
		return nil, err
	}
	uuid, err := random.UUIdV4()
	if err != nil {
		return nil, err
	}
	meta := &model.MetaPool{
		Uuid:     uuid,
		Name:     req.Name,
		Comments: req.Comments,
		Policy:   req.Policy,
		HaPolicy: model.MetaHaDisabled,
		Visible:  1,
	}
	if req.HaPolicy != "" {
		meta.HaPolicy = req.HaPolicy
	}
	if req.Visible != nil {
		meta.Visible = *req.Visible
	}
	err = s.tm.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.metaPoolRepo.Create(txCtx, meta); err != nil {
			return err
		}
		for _, m := range members {
			m.MetaPoolID = meta.Id
			if err := s.metaPoolRepo.AddMember(txCtx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *metaPoolService) Update(ctx context.Context, uuid string, req *v1.UpdateMetaPoolRequest) (*model.MetaPool, error) {
	meta, err := s.metaPoolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, v1.ErrNotFound
	}
	if req.Name != nil {
		meta.Name = *req.Name
	}
	if req.Comments != nil {
		meta.Comments = *req.Comments
	}
	if req.Policy != nil {
		meta.Policy = *req.Policy
	}
	if req.HaPolicy != nil {
		meta.HaPolicy = *req.HaPolicy
	}
	if req.Visible != nil {
		meta.Visible = *req.Visible
	}

	var members []*model.MetaPoolMember
	if req.Members != nil {
		members, err = s.resolveMembers(ctx, req.Members)
		if err != nil {
			return nil, err
		}
	}
	err = s.tm.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.metaPoolRepo.Update(txCtx, meta); err != nil {
			return err
		}
		if req.Members == nil {
			return nil
		}
		// member list updates are whole replacements
		current, err := s.metaPoolRepo.ListMembers(txCtx, meta.Id)
		if err != nil {
			return err
		}
		for _, m := range current {
			if err := s.metaPoolRepo.RemoveMember(txCtx, meta.Id, m.PoolID); err != nil {
				return err
			}
		}
		for _, m := range members {
			m.MetaPoolID = meta.Id
			if err := s.metaPoolRepo.AddMember(txCtx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *metaPoolService) GetByUuid(ctx context.Context, uuid string) (*model.MetaPool, error) {
	meta, err := s.metaPoolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, v1.ErrNotFound
	}
	return meta, nil
}

func (s *metaPoolService) List(ctx context.Context) ([]v1.MetaPoolItem, error) {
	metas, err := s.metaPoolRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]v1.MetaPoolItem, 0, len(metas))
	for _, meta := range metas {
		item := v1.MetaPoolItem{
			Id:         meta.Id,
			Uuid:       meta.Uuid,
			Name:       meta.Name,
			Comments:   meta.Comments,
			Policy:     meta.Policy,
			HaPolicy:   meta.HaPolicy,
			Visible:    meta.Visible,
			CreateTime: meta.CreateTime,
			UpdateTime: meta.UpdateTime,
		}
		members, err := s.metaPoolRepo.ListMembers(ctx, meta.Id)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			pool, err := s.poolRepo.GetByID(ctx, m.PoolID)
			if err != nil {
				return nil, err
			}
			if pool == nil {
				continue
			}
			item.Members = append(item.Members, v1.MetaPoolMemberItem{
				PoolUuid: pool.Uuid,
				PoolName: pool.Name,
				Priority: m.Priority,
				Enabled:  m.Enabled,
			})
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *metaPoolService) Delete(ctx context.Context, uuid string) error {
	meta, err := s.metaPoolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	if meta == nil {
		return v1.ErrNotFound
	}
	return s.tm.Transaction(ctx, func(txCtx context.Context) error {
		members, err := s.metaPoolRepo.ListMembers(txCtx, meta.Id)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := s.metaPoolRepo.RemoveMember(txCtx, meta.Id, m.PoolID); err != nil {
				return err
			}
		}
		return s.metaPoolRepo.Delete(txCtx, meta.Id)
	})
}

func (s *metaPoolService) resolveMembers(ctx context.Context, reqs []v1.MetaPoolMemberRequest) ([]*model.MetaPoolMember, error) {
	members := make([]*model.MetaPoolMember, 0, len(reqs))
	for _, m := range reqs {
		pool, err := s.poolRepo.GetByUuid(ctx, m.PoolUuid)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, v1.ErrNotFound
		}
		member := &model.MetaPoolMember{
			PoolID:   pool.Id,
			Priority: m.Priority,
			Enabled:  1,
		}
		if m.Enabled != nil {
			member.Enabled = *m.Enabled
		}
		members = append(members, member)
	}
	return members, nil
}
