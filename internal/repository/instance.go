package repository

import (
	"context"
	"errors"
	"time"

	"vdisphere/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InstanceRepository interface {
	Create(ctx context.Context, inst *model.Instance) error
	Update(ctx context.Context, inst *model.Instance) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Instance, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Instance, error)
	GetByUuidForUpdate(ctx context.Context, uuid string) (*model.Instance, error)
	GetByCommsSecret(ctx context.Context, secret string) (*model.Instance, error)

	// GetAssignedToUser returns a live assignment of the user in the pool, if any
	GetAssignedToUser(ctx context.Context, poolID, userID int64) (*model.Instance, error)
	GetAssignedToUserInPools(ctx context.Context, userID int64, poolIDs []int64) (*model.Instance, error)

	// FindClaimCandidate locks (FOR UPDATE) one unowned cache instance at the
	// given level matching states/osStates, oldest first. Call inside a
	// transaction.
	FindClaimCandidate(ctx context.Context, poolID int64, level int8, states, osStates []string) (*model.Instance, error)
	// ClaimForUser conditionally assigns the instance to the user. The
	// affected-row count decides the race: false means someone else won and
	// the caller must look for another candidate.
	ClaimForUser(ctx context.Context, id, userID int64) (bool, error)

	// CasState moves the instance to a new state only from one of the allowed
	// originating states, in a single conditional update.
	CasState(ctx context.Context, id int64, fromStates []string, to string) (bool, error)

	CountByPoolAndStates(ctx context.Context, poolID int64, states []string) (int64, error)
	CountAssigned(ctx context.Context, poolID int64) (int64, error)
	CountCached(ctx context.Context, poolID int64, level int8) (int64, error)
	CountInUse(ctx context.Context, poolID int64) (int64, error)
	CountByProviderAndStates(ctx context.Context, providerID int64, states []string) (int64, error)
	CountErrorsSince(ctx context.Context, poolID int64, since time.Time) (int64, error)

	ListWithPagination(ctx context.Context, page, pageSize int, poolID int64, state string, userID int64) ([]*model.Instance, int64, error)
	ListByPoolAndStates(ctx context.Context, poolID int64, states []string, limit int) ([]*model.Instance, error)
	FindRemovables(ctx context.Context, limit int) ([]*model.Instance, error)
	FindStuck(ctx context.Context, states []string, before time.Time, limit int) ([]*model.Instance, error)
	FindOverflowVictim(ctx context.Context, poolID int64, level int8) (*model.Instance, error)
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

func NewInstanceRepository(r *Repository) InstanceRepository {
	return &instanceRepository{Repository: r}
}

type instanceRepository struct {
	*Repository
}

func (r *instanceRepository) Create(ctx context.Context, inst *model.Instance) error {
	if inst.StateDate.IsZero() {
		inst.StateDate = time.Now()
	}
	return r.DB(ctx).Create(inst).Error
}

func (r *instanceRepository) Update(ctx context.Context, inst *model.Instance) error {
	return r.DB(ctx).Save(inst).Error
}

func (r *instanceRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.DB(ctx).Model(&model.Instance{}).Where("id = ?", id).Updates(fields).Error
}

func (r *instanceRepository) Delete(ctx context.Context, id int64) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&model.Instance{}).Error
}

func (r *instanceRepository) GetByID(ctx context.Context, id int64) (*model.Instance, error) {
	var inst model.Instance
	if err := r.DB(ctx).Where("id = ?", id).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetByUuid(ctx context.Context, uuid string) (*model.Instance, error) {
	var inst model.Instance
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetByUuidForUpdate(ctx context.Context, uuid string) (*model.Instance, error) {
	var inst model.Instance
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", uuid).
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetByCommsSecret(ctx context.Context, secret string) (*model.Instance, error) {
	var inst model.Instance
	err := r.DB(ctx).
		Where("comms_secret = ? AND state NOT IN ?", secret, model.InstanceInfoStates).
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetAssignedToUser(ctx context.Context, poolID, userID int64) (*model.Instance, error) {
	var inst model.Instance
	err := r.DB(ctx).
		Where("pool_id = ? AND user_id = ? AND cache_level = ? AND state IN ?",
			poolID, userID, model.CacheLevelNone, model.InstanceValidStates).
		Order("id DESC").
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) GetAssignedToUserInPools(ctx context.Context, userID int64, poolIDs []int64) (*model.Instance, error) {
	if len(poolIDs) == 0 {
		return nil, nil
	}
	var inst model.Instance
	err := r.DB(ctx).
		Where("pool_id IN ? AND user_id = ? AND cache_level = ? AND state IN ?",
			poolIDs, userID, model.CacheLevelNone, model.InstanceValidStates).
		Order("id DESC").
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) FindClaimCandidate(ctx context.Context, poolID int64, level int8, states, osStates []string) (*model.Instance, error) {
	var inst model.Instance
	query := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pool_id = ? AND cache_level = ? AND user_id IS NULL AND state IN ?", poolID, level, states)
	if len(osStates) > 0 {
		query = query.Where("os_state IN ?", osStates)
	}
	err := query.Order("state_date ASC").First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) ClaimForUser(ctx context.Context, id, userID int64) (bool, error) {
	res := r.DB(ctx).
		Model(&model.Instance{}).
		Where("id = ? AND user_id IS NULL", id).
		Updates(map[string]interface{}{
			"user_id":     userID,
			"cache_level": model.CacheLevelNone,
			"state_date":  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *instanceRepository) CasState(ctx context.Context, id int64, fromStates []string, to string) (bool, error) {
	res := r.DB(ctx).
		Model(&model.Instance{}).
		Where("id = ? AND state IN ?", id, fromStates).
		Updates(map[string]interface{}{
			"state":      to,
			"state_date": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *instanceRepository) CountByPoolAndStates(ctx context.Context, poolID int64, states []string) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Instance{}).
		Where("pool_id = ? AND state IN ?", poolID, states).
		Count(&count).Error
	return count, err
}

func (r *instanceRepository) CountAssigned(ctx context.Context, poolID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Instance{}).
		Where("pool_id = ? AND user_id IS NOT NULL AND state NOT IN ?", poolID, model.InstanceInfoStates).
		Count(&count).Error
	return count, err
}

func (r *instanceRepository) CountCached(ctx context.Context, poolID int64, level int8) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Instance{}).
		Where("pool_id = ? AND cache_level = ? AND state NOT IN ?", poolID, level, model.InstanceInfoStates).
		Count(&count).Error
	return count, err
}

func (r *instanceRepository) CountInUse(ctx context.Context, poolID int64) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Instance{}).
		Where("pool_id = ? AND in_use = 1 AND state NOT IN ?", poolID, model.InstanceInfoStates).
		Count(&count).Error
	return count, err
}

func (r *instanceRepository) CountByProviderAndStates(ctx context.Context, providerID int64, states []string) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Table("instances").
		Joins("JOIN service_pools ON instances.pool_id = service_pools.id").
		Where("service_pools.provider_id = ? AND instances.state IN ?", providerID, states).
		Count(&count).Error
	return count, err
}

func (r *instanceRepository) CountErrorsSince(ctx context.Context, poolID int64, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.Instance{}).
		Where("pool_id = ? AND state = ? AND state_date > ?", poolID, model.InstanceStateError, since).
		Count(&count).Error
	return count, err
}

func (r *instanceRepository) ListWithPagination(ctx context.Context, page, pageSize int, poolID int64, state string, userID int64) ([]*model.Instance, int64, error) {
	var insts []*model.Instance
	var total int64

	query := r.DB(ctx).Model(&model.Instance{})
	if poolID > 0 {
		query = query.Where("pool_id = ?", poolID)
	}
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if userID > 0 {
		query = query.Where("user_id = ?", userID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("id DESC").Find(&insts).Error; err != nil {
		return nil, 0, err
	}

	return insts, total, nil
}

func (r *instanceRepository) ListByPoolAndStates(ctx context.Context, poolID int64, states []string, limit int) ([]*model.Instance, error) {
	var insts []*model.Instance
	query := r.DB(ctx).
		Where("pool_id = ? AND state IN ?", poolID, states).
		Order("state_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&insts).Error; err != nil {
		return nil, err
	}
	return insts, nil
}

// FindRemovables returns removable instances safe to tear down, oldest first.
// Instances still held by a user are only included when flagged destroy_after.
func (r *instanceRepository) FindRemovables(ctx context.Context, limit int) ([]*model.Instance, error) {
	var insts []*model.Instance
	err := r.DB(ctx).
		Where("state = ? AND (user_id IS NULL OR destroy_after = 1)", model.InstanceStateRemovable).
		Order("state_date ASC").
		Limit(limit).
		Find(&insts).Error
	if err != nil {
		return nil, err
	}
	return insts, nil
}

func (r *instanceRepository) FindStuck(ctx context.Context, states []string, before time.Time, limit int) ([]*model.Instance, error) {
	var insts []*model.Instance
	err := r.DB(ctx).
		Where("state IN ? AND state_date < ?", states, before).
		Order("state_date ASC").
		Limit(limit).
		Find(&insts).Error
	if err != nil {
		return nil, err
	}
	return insts, nil
}

// FindOverflowVictim locks one unowned cache instance at the level, the one
// idle longest, to shrink an oversized tier. Call inside a transaction.
func (r *instanceRepository) FindOverflowVictim(ctx context.Context, poolID int64, level int8) (*model.Instance, error) {
	var inst model.Instance
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pool_id = ? AND cache_level = ? AND user_id IS NULL AND in_use = 0 AND state IN ?",
			poolID, level, model.InstanceValidStates).
		Order("state_date ASC").
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("state IN ? AND state_date < ?", model.InstanceInfoStates, before).
		Delete(&model.Instance{})
	return res.RowsAffected, res.Error
}
