package repository

import (
	"context"
	"errors"

	"vdisphere/internal/model"

	"gorm.io/gorm"
)

type PublicationRepository interface {
	Create(ctx context.Context, pub *model.Publication) error
	Update(ctx context.Context, pub *model.Publication) error
	GetByID(ctx context.Context, id int64) (*model.Publication, error)
	ListByPool(ctx context.Context, poolID int64) ([]*model.Publication, error)
	MaxRevision(ctx context.Context, poolID int64) (int, error)
	ExistsPreparing(ctx context.Context, poolID int64) (bool, error)
	CountInstanceRefs(ctx context.Context, pubID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

func NewPublicationRepository(r *Repository) PublicationRepository {
	return &publicationRepository{Repository: r}
}

type publicationRepository struct {
	*Repository
}

func (r *publicationRepository) Create(ctx context.Context, pub *model.Publication) error {
	return r.DB(ctx).Create(pub).Error
}

func (r *publicationRepository) Update(ctx context.Context, pub *model.Publication) error {
	return r.DB(ctx).Save(pub).Error
}

func (r *publicationRepository) GetByID(ctx context.Context, id int64) (*model.Publication, error) {
	var pub model.Publication
	if err := r.DB(ctx).Where("id = ?", id).First(&pub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pub, nil
}

func (r *publicationRepository) ListByPool(ctx context.Context, poolID int64) ([]*model.Publication, error) {
	var pubs []*model.Publication
	if err := r.DB(ctx).Where("pool_id = ?", poolID).Order("revision DESC").Find(&pubs).Error; err != nil {
		return nil, err
	}
	return pubs, nil
}

func (r *publicationRepository) MaxRevision(ctx context.Context, poolID int64) (int, error) {
	var revision int
	err := r.DB(ctx).
		Model(&model.Publication{}).
		Select("COALESCE(MAX(revision), 0)").
		Where("pool_id = ?", poolID).
		Scan(&revision).Error
	return revision, err
}

func (r *publicationRepository) ExistsPreparing(ctx context.Context, poolID int64) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Publication{}).
		Where("pool_id = ? AND state = ?", poolID, model.PublicationStatePreparing).
		Count(&count).Error
	return count > 0, err
}

// CountInstanceRefs counts non-terminal instances still built from the
// publication; it may only be deleted once this reaches zero.
func (r *publicationRepository) CountInstanceRefs(ctx context.Context, pubID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Instance{}).
		Where("publication_id = ? AND state NOT IN ?", pubID, model.InstanceInfoStates).
		Count(&count).Error
	return count, err
}

func (r *publicationRepository) Delete(ctx context.Context, id int64) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&model.Publication{}).Error
}
