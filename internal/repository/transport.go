package repository

import (
	"context"
	"errors"

	"vdisphere/internal/model"

	"gorm.io/gorm"
)

type TransportRepository interface {
	Create(ctx context.Context, transport *model.Transport) error
	Update(ctx context.Context, transport *model.Transport) error
	GetByID(ctx context.Context, id int64) (*model.Transport, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Transport, error)
	List(ctx context.Context) ([]*model.Transport, error)
	Delete(ctx context.Context, id int64) error
}

func NewTransportRepository(r *Repository) TransportRepository {
	return &transportRepository{Repository: r}
}

type transportRepository struct {
	*Repository
}

func (r *transportRepository) Create(ctx context.Context, transport *model.Transport) error {
	return r.DB(ctx).Create(transport).Error
}

func (r *transportRepository) Update(ctx context.Context, transport *model.Transport) error {
	return r.DB(ctx).Save(transport).Error
}

func (r *transportRepository) GetByID(ctx context.Context, id int64) (*model.Transport, error) {
	var transport model.Transport
	if err := r.DB(ctx).Where("id = ?", id).First(&transport).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transport, nil
}

func (r *transportRepository) GetByUuid(ctx context.Context, uuid string) (*model.Transport, error) {
	var transport model.Transport
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&transport).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transport, nil
}

func (r *transportRepository) List(ctx context.Context) ([]*model.Transport, error) {
	var transports []*model.Transport
	if err := r.DB(ctx).Order("priority ASC").Find(&transports).Error; err != nil {
		return nil, err
	}
	return transports, nil
}

func (r *transportRepository) Delete(ctx context.Context, id int64) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&model.Transport{}).Error
}
