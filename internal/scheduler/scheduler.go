package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"go.uber.org/zap"
)

// Task types dispatched by the runner.
const (
	TaskTypeStateCheck = "state_check"
)

// Handler executes one claimed task. The task row is already gone from the
// table when the handler runs; a handler that needs another attempt
// schedules a fresh task.
type Handler func(ctx context.Context, task *model.DelayedTask) error

// Scheduler persists deferred work and dispatches it when due. Scheduling is
// deduplicated per tag: at most one pending task exists for any (type,
// instance) pair, and scheduling again replaces the previous one.
type Scheduler struct {
	taskRepo     repository.DelayedTaskRepository
	instanceRepo repository.InstanceRepository
	logger       *log.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewScheduler(
	taskRepo repository.DelayedTaskRepository,
	instanceRepo repository.InstanceRepository,
	logger *log.Logger,
) *Scheduler {
	return &Scheduler{
		taskRepo:     taskRepo,
		instanceRepo: instanceRepo,
		logger:       logger,
		handlers:     make(map[string]Handler),
	}
}

// RegisterHandler binds a task type to its handler. Registration happens at
// wiring time, before the runner starts.
func (s *Scheduler) RegisterHandler(taskType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

// TagFor is the dedup key of a task type on one instance.
func TagFor(taskType, instanceUuid string) string {
	return fmt.Sprintf("%s:%s", taskType, instanceUuid)
}

// Schedule queues a recheck for the instance after delay. The instance's
// expected state is recorded so a task outlived by a state change becomes a
// no-op instead of acting on stale intent.
func (s *Scheduler) Schedule(ctx context.Context, taskType string, inst *model.Instance, delay time.Duration) error {
	now := time.Now()
	task := &model.DelayedTask{
		Tag:           TagFor(taskType, inst.Uuid),
		Type:          taskType,
		InstanceUuid:  inst.Uuid,
		ExpectedState: inst.State,
		ExecutionTime: now.Add(delay),
		InsertDate:    now,
	}
	return s.taskRepo.Schedule(ctx, task)
}

// Cancel drops the pending task of the given type for the instance, if any.
func (s *Scheduler) Cancel(ctx context.Context, taskType, instanceUuid string) error {
	return s.taskRepo.Remove(ctx, TagFor(taskType, instanceUuid))
}

// RunDue claims and dispatches every task whose time has come. Claiming
// deletes the row inside a locking transaction, so concurrent runners never
// execute the same task twice. Returns how many tasks ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	ran := 0
	for {
		task, err := s.taskRepo.ClaimDue(ctx, time.Now())
		if err != nil {
			s.logger.WithContext(ctx).Error("claim delayed task error", zap.Error(err))
			return ran
		}
		if task == nil {
			return ran
		}
		s.dispatch(ctx, task)
		ran++
	}
}

func (s *Scheduler) dispatch(ctx context.Context, task *model.DelayedTask) {
	if stale, err := s.isStale(ctx, task); err != nil {
		s.logger.WithContext(ctx).Error("stale check error",
			zap.String("tag", task.Tag), zap.Error(err))
		return
	} else if stale {
		s.logger.WithContext(ctx).Info("dropping stale task",
			zap.String("tag", task.Tag),
			zap.String("expected_state", task.ExpectedState))
		return
	}

	s.mu.RLock()
	h, ok := s.handlers[task.Type]
	s.mu.RUnlock()
	if !ok {
		s.logger.WithContext(ctx).Error("no handler for task type",
			zap.String("type", task.Type), zap.String("tag", task.Tag))
		return
	}

	if err := h(ctx, task); err != nil {
		// the claim already consumed the row; a lost check is picked up by
		// the stuck checker job later
		s.logger.WithContext(ctx).Error("delayed task failed",
			zap.String("tag", task.Tag), zap.Error(err))
	}
}

// isStale reports whether the instance moved on since the task was
// scheduled. A mismatch means another actor changed the state and this
// task's intent no longer applies.
func (s *Scheduler) isStale(ctx context.Context, task *model.DelayedTask) (bool, error) {
	if task.InstanceUuid == "" || task.ExpectedState == "" {
		return false, nil
	}
	inst, err := s.instanceRepo.GetByUuid(ctx, task.InstanceUuid)
	if err != nil {
		return false, err
	}
	if inst == nil {
		return true, nil
	}
	return inst.State != task.ExpectedState, nil
}
