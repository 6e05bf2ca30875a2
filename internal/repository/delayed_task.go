package repository

import (
	"context"
	"errors"
	"time"

	"vdisphere/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DelayedTaskRepository interface {
	// Schedule inserts the entry after removing any previous one with the same
	// tag, keeping at most one pending recheck per instance and purpose.
	Schedule(ctx context.Context, task *model.DelayedTask) error
	Remove(ctx context.Context, tag string) error
	// ClaimDue atomically takes ownership of the next due entry: it is locked,
	// deleted and returned in one transaction, so no two runners ever execute
	// the same entry.
	ClaimDue(ctx context.Context, now time.Time) (*model.DelayedTask, error)
	GetByTag(ctx context.Context, tag string) (*model.DelayedTask, error)
	CountByInstance(ctx context.Context, instanceUuid string) (int64, error)
}

func NewDelayedTaskRepository(r *Repository) DelayedTaskRepository {
	return &delayedTaskRepository{Repository: r}
}

type delayedTaskRepository struct {
	*Repository
}

func (r *delayedTaskRepository) Schedule(ctx context.Context, task *model.DelayedTask) error {
	if task.InsertDate.IsZero() {
		task.InsertDate = time.Now()
	}
	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.DB(ctx).Where("tag = ?", task.Tag).Delete(&model.DelayedTask{}).Error; err != nil {
			return err
		}
		return r.DB(ctx).Create(task).Error
	})
}

func (r *delayedTaskRepository) Remove(ctx context.Context, tag string) error {
	return r.DB(ctx).Where("tag = ?", tag).Delete(&model.DelayedTask{}).Error
}

func (r *delayedTaskRepository) ClaimDue(ctx context.Context, now time.Time) (*model.DelayedTask, error) {
	var claimed *model.DelayedTask
	err := r.Transaction(ctx, func(ctx context.Context) error {
		var task model.DelayedTask
		err := r.DB(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("execution_time <= ?", now).
			Order("execution_time ASC").
			First(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := r.DB(ctx).Where("id = ?", task.Id).Delete(&model.DelayedTask{}).Error; err != nil {
			return err
		}
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *delayedTaskRepository) GetByTag(ctx context.Context, tag string) (*model.DelayedTask, error) {
	var task model.DelayedTask
	if err := r.DB(ctx).Where("tag = ?", tag).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *delayedTaskRepository) CountByInstance(ctx context.Context, instanceUuid string) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.DelayedTask{}).
		Where("instance_uuid = ?", instanceUuid).
		Count(&count).Error
	return count, err
}
