package repository

import (
	"context"
	"errors"

	"vdisphere/internal/model"

	"gorm.io/gorm"
)

type MetaPoolRepository interface {
	Create(ctx context.Context, meta *model.MetaPool) error
	Update(ctx context.Context, meta *model.MetaPool) error
	GetByID(ctx context.Context, id int64) (*model.MetaPool, error)
	GetByUuid(ctx context.Context, uuid string) (*model.MetaPool, error)
	List(ctx context.Context) ([]*model.MetaPool, error)
	Delete(ctx context.Context, id int64) error
	AddMember(ctx context.Context, member *model.MetaPoolMember) error
	RemoveMember(ctx context.Context, metaID, poolID int64) error
	ListMembers(ctx context.Context, metaID int64) ([]*model.MetaPoolMember, error)
}

func NewMetaPoolRepository(r *Repository) MetaPoolRepository {
	return &metaPoolRepository{Repository: r}
}

type metaPoolRepository struct {
	*Repository
}

func (r *metaPoolRepository) Create(ctx context.Context, meta *model.MetaPool) error {
	return r.DB(ctx).Create(meta).Error
}

func (r *metaPoolRepository) Update(ctx context.Context, meta *model.MetaPool) error {
	return r.DB(ctx).Save(meta).Error
}

func (r *metaPoolRepository) GetByID(ctx context.Context, id int64) (*model.MetaPool, error) {
	var meta model.MetaPool
	if err := r.DB(ctx).Where("id = ?", id).First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

func (r *metaPoolRepository) GetByUuid(ctx context.Context, uuid string) (*model.MetaPool, error) {
	var meta model.MetaPool
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

func (r *metaPoolRepository) List(ctx context.Context) ([]*model.MetaPool, error) {
	var metas []*model.MetaPool
	if err := r.DB(ctx).Order("id ASC").Find(&metas).Error; err != nil {
		return nil, err
	}
	return metas, nil
}

func (r *metaPoolRepository) Delete(ctx context.Context, id int64) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&model.MetaPool{}).Error
}

func (r *metaPoolRepository) AddMember(ctx context.Context, member *model.MetaPoolMember) error {
	return r.DB(ctx).Create(member).Error
}

func (r *metaPoolRepository) RemoveMember(ctx context.Context, metaID, poolID int64) error {
	return r.DB(ctx).
		Where("meta_pool_id = ? AND pool_id = ?", metaID, poolID).
		Delete(&model.MetaPoolMember{}).Error
}

func (r *metaPoolRepository) ListMembers(ctx context.Context, metaID int64) ([]*model.MetaPoolMember, error) {
	var members []*model.MetaPoolMember
	err := r.DB(ctx).
		Where("meta_pool_id = ?", metaID).
		Order("priority ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
