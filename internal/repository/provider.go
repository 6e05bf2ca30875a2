package repository

import (
	"context"
	"errors"

	"vdisphere/internal/model"

	"gorm.io/gorm"
)

type ProviderRepository interface {
	Create(ctx context.Context, provider *model.Provider) error
	Update(ctx context.Context, provider *model.Provider) error
	GetByID(ctx context.Context, id int64) (*model.Provider, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Provider, error)
	List(ctx context.Context) ([]*model.Provider, error)
}

func NewProviderRepository(r *Repository) ProviderRepository {
	return &providerRepository{Repository: r}
}

type providerRepository struct {
	*Repository
}

func (r *providerRepository) Create(ctx context.Context, provider *model.Provider) error {
	return r.DB(ctx).Create(provider).Error
}

func (r *providerRepository) Update(ctx context.Context, provider *model.Provider) error {
	return r.DB(ctx).Save(provider).Error
}

func (r *providerRepository) GetByID(ctx context.Context, id int64) (*model.Provider, error) {
	var provider model.Provider
	if err := r.DB(ctx).Where("id = ?", id).First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (r *providerRepository) GetByUuid(ctx context.Context, uuid string) (*model.Provider, error) {
	var provider model.Provider
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (r *providerRepository) List(ctx context.Context) ([]*model.Provider, error) {
	var providers []*model.Provider
	if err := r.DB(ctx).Order("id ASC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
