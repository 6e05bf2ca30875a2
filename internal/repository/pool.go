package repository

import (
	"context"
	"errors"

	"vdisphere/internal/model"

	"gorm.io/gorm"
)

type PoolRepository interface {
	Create(ctx context.Context, pool *model.Pool) error
	Update(ctx context.Context, pool *model.Pool) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	GetByID(ctx context.Context, id int64) (*model.Pool, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Pool, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Pool, error)
	ListWithPagination(ctx context.Context, page, pageSize int, providerID int64, status string) ([]*model.Pool, int64, error)
	ListActive(ctx context.Context) ([]*model.Pool, error)
	ListByStatus(ctx context.Context, status string) ([]*model.Pool, error)
}

func NewPoolRepository(r *Repository) PoolRepository {
	return &poolRepository{Repository: r}
}

type poolRepository struct {
	*Repository
}

func (r *poolRepository) Create(ctx context.Context, pool *model.Pool) error {
	return r.DB(ctx).Create(pool).Error
}

func (r *poolRepository) Update(ctx context.Context, pool *model.Pool) error {
	return r.DB(ctx).Save(pool).Error
}

func (r *poolRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.DB(ctx).Model(&model.Pool{}).Where("id = ?", id).Updates(fields).Error
}

func (r *poolRepository) GetByID(ctx context.Context, id int64) (*model.Pool, error) {
	var pool model.Pool
	if err := r.DB(ctx).Where("id = ?", id).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *poolRepository) GetByUuid(ctx context.Context, uuid string) (*model.Pool, error) {
	var pool model.Pool
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *poolRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Pool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var pools []*model.Pool
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&pools).Error; err != nil {
		return nil, err
	}
	return pools, nil
}

func (r *poolRepository) ListWithPagination(ctx context.Context, page, pageSize int, providerID int64, status string) ([]*model.Pool, int64, error) {
	var pools []*model.Pool
	var total int64

	query := r.DB(ctx).Model(&model.Pool{})
	if providerID > 0 {
		query = query.Where("provider_id = ?", providerID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("id DESC").Find(&pools).Error; err != nil {
		return nil, 0, err
	}

	return pools, total, nil
}

func (r *poolRepository) ListActive(ctx context.Context) ([]*model.Pool, error) {
	return r.ListByStatus(ctx, model.PoolStatusActive)
}

func (r *poolRepository) ListByStatus(ctx context.Context, status string) ([]*model.Pool, error) {
	var pools []*model.Pool
	if err := r.DB(ctx).Where("status = ?", status).Find(&pools).Error; err != nil {
		return nil, err
	}
	return pools, nil
}
