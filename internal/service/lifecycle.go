package service

import (
	"context"
	"fmt"
	"time"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/osmgr"
	"vdisphere/internal/repository"
	"vdisphere/internal/scheduler"
	"vdisphere/pkg/log"

	"github.com/duke-git/lancet/v2/random"
	"go.uber.org/zap"
)

// LifecycleService owns every instance state transition. Backend task
// outcomes enter through RegisterOutcome; administrative and user intents
// enter through the named operations. Nothing else writes instance states.
type LifecycleService interface {
	CreateAssigned(ctx context.Context, pool *model.Pool, user *model.User) (*model.Instance, error)
	CreateCached(ctx context.Context, pool *model.Pool, level int8) (*model.Instance, error)

	Remove(ctx context.Context, inst *model.Instance) error
	Cancel(ctx context.Context, inst *model.Instance) error
	Release(ctx context.Context, inst *model.Instance) error
	MarkRemovable(ctx context.Context, inst *model.Instance) error
	MoveToCache(ctx context.Context, inst *model.Instance, level int8) error
	Reset(ctx context.Context, inst *model.Instance) error
	SetInUse(ctx context.Context, inst *model.Instance, inUse bool) error
	NotifyReady(ctx context.Context, inst *model.Instance, ip, endpoint, version string) error

	// CheckNow polls the backend immediately and feeds the outcome through
	// the state machine.
	CheckNow(ctx context.Context, inst *model.Instance) error

	// Redrive unsticks an instance whose delayed task was lost: transitional
	// states get their backend operation re-issued, preparing is abandoned.
	Redrive(ctx context.Context, inst *model.Instance) error

	// ResolveEnv loads the instance's deployment environment (pool, provider
	// and the publication it was built from).
	ResolveEnv(ctx context.Context, inst *model.Instance) (*backend.Env, error)
}

func NewLifecycleService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.PoolRepository,
	providerRepo repository.ProviderRepository,
	publicationRepo repository.PublicationRepository,
	backendReg *backend.Registry,
	osmgrReg *osmgr.Registry,
	sched *scheduler.Scheduler,
	poolCache PoolCacheService,
	logger *log.Logger,
) LifecycleService {
	s := &lifecycleService{
		Service:         service,
		instanceRepo:    instanceRepo,
		poolRepo:        poolRepo,
		providerRepo:    providerRepo,
		publicationRepo: publicationRepo,
		backendReg:      backendReg,
		osmgrReg:        osmgrReg,
		sched:           sched,
		poolCache:       poolCache,
		logger:          logger,
	}
	sched.RegisterHandler(scheduler.TaskTypeStateCheck, s.handleStateCheck)
	return s
}

type lifecycleService struct {
	*Service
	instanceRepo    repository.InstanceRepository
	poolRepo        repository.PoolRepository
	providerRepo    repository.ProviderRepository
	publicationRepo repository.PublicationRepository
	backendReg      *backend.Registry
	osmgrReg        *osmgr.Registry
	sched           *scheduler.Scheduler
	poolCache       PoolCacheService
	logger          *log.Logger
}

func (s *lifecycleService) CreateAssigned(ctx context.Context, pool *model.Pool, user *model.User) (*model.Instance, error) {
	inst, env, err := s.newInstance(ctx, pool)
	if err != nil {
		return nil, err
	}
	inst.UserID = &user.Id

	if err := s.instanceRepo.Create(ctx, inst); err != nil {
		return nil, err
	}
	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return nil, s.failEarly(ctx, inst, err)
	}
	outcome, opErr := be.DeployForUser(ctx, inst)
	if err := s.registerOutcome(ctx, env, be, inst, outcome, opErr); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *lifecycleService) CreateCached(ctx context.Context, pool *model.Pool, level int8) (*model.Instance, error) {
	inst, env, err := s.newInstance(ctx, pool)
	if err != nil {
		return nil, err
	}
	inst.CacheLevel = level

	if err := s.instanceRepo.Create(ctx, inst); err != nil {
		return nil, err
	}
	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return nil, s.failEarly(ctx, inst, err)
	}
	outcome, opErr := be.DeployForCache(ctx, inst, level)
	if err := s.registerOutcome(ctx, env, be, inst, outcome, opErr); err != nil {
		return nil, err
	}
	return inst, nil
}

// newInstance builds the row and the deployment environment. The publication
// active right now is stamped on the instance for its whole life.
func (s *lifecycleService) newInstance(ctx context.Context, pool *model.Pool) (*model.Instance, *backend.Env, error) {
	env, err := s.envForPool(ctx, pool)
	if err != nil {
		return nil, nil, err
	}

	uuid, err := random.UUIdV4()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	inst := &model.Instance{
		Uuid:         uuid,
		PoolID:       pool.Id,
		State:        model.InstanceStatePreparing,
		OsState:      model.OsStatePreparing,
		CacheLevel:   model.CacheLevelNone,
		StateDate:    now,
		FriendlyName: fmt.Sprintf("%s-%s", pool.Name, uuid[:8]),
		CommsSecret:  random.RandString(32),
	}
	if env.Publication != nil {
		pubID := env.Publication.Id
		inst.PublicationID = &pubID
	}
	return inst, env, nil
}

// Remove tears an instance down. Allowed from usable, removable and error;
// an instance still preparing is canceled instead. The precondition is
// checked and applied in one conditional update, so two concurrent removers
// cannot both proceed.
func (s *lifecycleService) Remove(ctx context.Context, inst *model.Instance) error {
	if inst.State == model.InstanceStatePreparing {
		return s.Cancel(ctx, inst)
	}
	env, err := s.buildEnv(ctx, inst)
	if err != nil {
		return err
	}
	return s.destroyFrom(ctx, env, inst,
		[]string{model.InstanceStateUsable, model.InstanceStateRemovable, model.InstanceStateError})
}

// Cancel abandons an instance still preparing; anything past that point is
// removed instead. Cooperative: the backend cleans up on its own schedule
// and the next outcome finalizes to canceled.
func (s *lifecycleService) Cancel(ctx context.Context, inst *model.Instance) error {
	if inst.State != model.InstanceStatePreparing {
		return s.Remove(ctx, inst)
	}
	env, err := s.buildEnv(ctx, inst)
	if err != nil {
		return err
	}
	ok, err := s.instanceRepo.CasState(ctx, inst.Id,
		[]string{model.InstanceStatePreparing}, model.InstanceStateCanceling)
	if err != nil {
		return err
	}
	if !ok {
		return v1.ErrOperationNotAllowed
	}
	s.setState(inst, model.InstanceStateCanceling)

	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return s.failEarly(ctx, inst, err)
	}
	outcome, opErr := be.Cancel(ctx, inst)
	return s.registerOutcome(ctx, env, be, inst, outcome, opErr)
}

// Release frees a user-assigned instance. The machine is destroyed unless
// the pool's first cache level is under target and the instance is still
// eligible, in which case the row is repurposed as a fresh L1 spare and a
// terminal placeholder row keeps the ended assignment on record. That path
// spares the backend a destroy plus recreate round-trip.
func (s *lifecycleService) Release(ctx context.Context, inst *model.Instance) error {
	if inst.UserID == nil {
		return v1.ErrOperationNotAllowed
	}
	env, err := s.buildEnv(ctx, inst)
	if err != nil {
		return err
	}
	mgr, err := s.osmgrReg.ForPool(env.Pool)
	if err != nil {
		return err
	}

	repurpose := inst.State == model.InstanceStateUsable &&
		inst.DestroyAfter == 0 &&
		env.Pool.Status == model.PoolStatusActive &&
		env.Pool.UsesCache() &&
		!(s.isPublicationStale(env, inst) && !mgr.IsPersistent())
	if repurpose {
		decision, err := s.poolCache.Evaluate(ctx, env.Pool, env.Provider, CacheDeltas{Assigned: -1})
		if err != nil {
			return err
		}
		repurpose = decision.L1 == CacheActionGrow
	}
	if !repurpose {
		return s.destroyFrom(ctx, env, inst,
			[]string{model.InstanceStateUsable, model.InstanceStateRemovable, model.InstanceStateError})
	}

	placeholderUuid, err := random.UUIdV4()
	if err != nil {
		return err
	}
	now := time.Now()
	err = s.tm.Transaction(ctx, func(ctx context.Context) error {
		placeholder := *inst
		placeholder.Id = 0
		placeholder.Uuid = placeholderUuid
		placeholder.State = model.InstanceStateRemoved
		placeholder.StateDate = now
		placeholder.InUse = 0
		placeholder.InUseDate = nil
		placeholder.CacheLevel = model.CacheLevelNone
		placeholder.Blob = nil
		placeholder.CommsSecret = ""
		placeholder.Reason = "released to cache"
		placeholder.CreateTime = time.Time{}
		placeholder.UpdateTime = time.Time{}
		if err := s.instanceRepo.Create(ctx, &placeholder); err != nil {
			return err
		}
		return s.instanceRepo.UpdateFields(ctx, inst.Id, map[string]interface{}{
			"user_id":       nil,
			"cache_level":   model.CacheLevelL1,
			"in_use":        0,
			"in_use_date":   nil,
			"destroy_after": 0,
			"state_date":    now,
		})
	})
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("instance repurposed as cache",
		zap.String("uuid", inst.Uuid), zap.Int64("pool_id", inst.PoolID))
	return nil
}

// MarkRemovable queues a usable instance for deferred removal by the
// cleanup job.
func (s *lifecycleService) MarkRemovable(ctx context.Context, inst *model.Instance) error {
	ok, err := s.instanceRepo.CasState(ctx, inst.Id,
		[]string{model.InstanceStateUsable}, model.InstanceStateRemovable)
	if err != nil {
		return err
	}
	if !ok {
		return v1.ErrOperationNotAllowed
	}
	s.setState(inst, model.InstanceStateRemovable)
	return nil
}

// MoveToCache shifts an unassigned spare between the cache levels. The
// instance goes back through preparing while the backend powers the machine
// up or down.
func (s *lifecycleService) MoveToCache(ctx context.Context, inst *model.Instance, level int8) error {
	if inst.UserID != nil || inst.CacheLevel == level {
		return v1.ErrOperationNotAllowed
	}
	env, err := s.buildEnv(ctx, inst)
	if err != nil {
		return err
	}
	ok, err := s.instanceRepo.CasState(ctx, inst.Id,
		[]string{model.InstanceStateUsable}, model.InstanceStatePreparing)
	if err != nil {
		return err
	}
	if !ok {
		return v1.ErrOperationNotAllowed
	}
	s.setState(inst, model.InstanceStatePreparing)
	if err := s.instanceRepo.UpdateFields(ctx, inst.Id, map[string]interface{}{
		"cache_level": level,
	}); err != nil {
		return err
	}
	inst.CacheLevel = level

	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return s.failEarly(ctx, inst, err)
	}
	outcome, opErr := be.MoveToCache(ctx, inst, level)
	return s.registerOutcome(ctx, env, be, inst, outcome, opErr)
}

// Reset reboots the guest hard. No state transition; the outcome is only
// logged.
func (s *lifecycleService) Reset(ctx context.Context, inst *model.Instance) error {
	if inst.State != model.InstanceStateUsable {
		return v1.ErrOperationNotAllowed
	}
	env, err := s.buildEnv(ctx, inst)
	if err != nil {
		return err
	}
	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return err
	}
	outcome, opErr := be.Reset(ctx, inst)
	if outcome == backend.TaskError {
		s.logger.WithContext(ctx).Error("instance reset failed",
			zap.String("uuid", inst.Uuid), zap.Error(opErr))
		return v1.ErrInternalServerError
	}
	s.logger.WithContext(ctx).Info("instance reset", zap.String("uuid", inst.Uuid))
	return nil
}

func (s *lifecycleService) SetInUse(ctx context.Context, inst *model.Instance, inUse bool) error {
	fields := map[string]interface{}{"in_use": 0, "in_use_date": nil}
	if inUse {
		now := time.Now()
		fields["in_use"] = 1
		fields["in_use_date"] = now
		inst.InUse = 1
		inst.InUseDate = &now
	} else {
		inst.InUse = 0
		inst.InUseDate = nil
	}
	if err := s.instanceRepo.UpdateFields(ctx, inst.Id, fields); err != nil {
		return err
	}
	// destroy after last use
	if !inUse && inst.DestroyAfter != 0 {
		return s.Remove(ctx, inst)
	}
	return nil
}

// NotifyReady records the guest agent's announcement. For an instance still
// preparing this re-enters the state machine right away instead of waiting
// for the next scheduled poll.
func (s *lifecycleService) NotifyReady(ctx context.Context, inst *model.Instance, ip, endpoint, version string) error {
	inst.KnownIP = ip
	inst.CommsEndpoint = endpoint
	inst.AgentVersion = version
	if err := s.instanceRepo.UpdateFields(ctx, inst.Id, map[string]interface{}{
		"known_ip":       ip,
		"comms_endpoint": endpoint,
		"agent_version":  version,
	}); err != nil {
		return err
	}

	if inst.State == model.InstanceStatePreparing {
		return s.CheckNow(ctx, inst)
	}
	if inst.OsState != model.OsStateUsable {
		inst.OsState = model.OsStateUsable
		return s.instanceRepo.UpdateFields(ctx, inst.Id, map[string]interface{}{
			"os_state": model.OsStateUsable,
		})
	}
	return nil
}

func (s *lifecycleService) CheckNow(ctx context.Context, inst *model.Instance) error {
	env, err := s.buildEnv(ctx, inst)
	if err != nil {
		return err
	}
	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return s.failEarly(ctx, inst, err)
	}
	outcome, opErr := be.CheckState(ctx, inst)
	return s.registerOutcome(ctx, env, be, inst, outcome, opErr)
}

func (s *lifecycleService) Redrive(ctx context.Context, inst *model.Instance) error {
	s.logger.WithContext(ctx).Warn("redriving stuck instance",
		zap.String("uuid", inst.Uuid), zap.String("state", inst.State),
		zap.Time("state_date", inst.StateDate))

	switch inst.State {
	case model.InstanceStatePreparing:
		return s.Cancel(ctx, inst)
	case model.InstanceStateRemoving, model.InstanceStateCanceling:
		env, err := s.buildEnv(ctx, inst)
		if err != nil {
			return err
		}
		be, err := s.backendReg.New(env, s.logger)
		if err != nil {
			return s.failEarly(ctx, inst, err)
		}
		outcome, opErr := be.Destroy(ctx, inst)
		return s.registerOutcome(ctx, env, be, inst, outcome, opErr)
	default:
		return v1.ErrOperationNotAllowed
	}
}

// handleStateCheck is the scheduler entry point: re-poll the backend for an
// instance whose operation was still running at the previous look.
func (s *lifecycleService) handleStateCheck(ctx context.Context, task *model.DelayedTask) error {
	inst, err := s.instanceRepo.GetByUuid(ctx, task.InstanceUuid)
	if err != nil {
		return err
	}
	if inst == nil {
		return nil
	}
	return s.CheckNow(ctx, inst)
}

// destroyFrom moves the instance to removing from one of the allowed states
// and starts the backend teardown.
func (s *lifecycleService) destroyFrom(ctx context.Context, env *backend.Env, inst *model.Instance, fromStates []string) error {
	ok, err := s.instanceRepo.CasState(ctx, inst.Id, fromStates, model.InstanceStateRemoving)
	if err != nil {
		return err
	}
	if !ok {
		return v1.ErrOperationNotAllowed
	}
	s.setState(inst, model.InstanceStateRemoving)

	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return s.failEarly(ctx, inst, err)
	}
	outcome, opErr := be.Destroy(ctx, inst)
	return s.registerOutcome(ctx, env, be, inst, outcome, opErr)
}

// registerOutcome is the single entry of backend task outcomes into the
// state machine. The enum is closed; every pair of (current state, outcome)
// lands in a defined row, and the undefined ones land in error.
func (s *lifecycleService) registerOutcome(ctx context.Context, env *backend.Env, be backend.Backend, inst *model.Instance, outcome backend.TaskState, opErr error) error {
	switch outcome {
	case backend.TaskRunning:
		if err := s.instanceRepo.Update(ctx, inst); err != nil {
			return err
		}
		return s.sched.Schedule(ctx, scheduler.TaskTypeStateCheck, inst, be.SuggestedDelay())

	case backend.TaskError:
		reason := "backend operation failed"
		if opErr != nil {
			reason = opErr.Error()
		}
		s.logger.WithContext(ctx).Error("backend operation failed",
			zap.String("uuid", inst.Uuid),
			zap.String("state", inst.State),
			zap.Error(opErr))
		s.setState(inst, model.InstanceStateError)
		inst.Reason = truncateReason(reason)
		if err := s.instanceRepo.Update(ctx, inst); err != nil {
			return err
		}
		return s.sched.Cancel(ctx, scheduler.TaskTypeStateCheck, inst.Uuid)

	case backend.TaskFinished:
		return s.finalize(ctx, env, inst)
	}

	s.setState(inst, model.InstanceStateError)
	inst.Reason = fmt.Sprintf("unknown task outcome %d", outcome)
	return s.instanceRepo.Update(ctx, inst)
}

// finalize dispatches a FINISHED outcome on the state the operation was
// running under.
func (s *lifecycleService) finalize(ctx context.Context, env *backend.Env, inst *model.Instance) error {
	switch inst.State {
	case model.InstanceStatePreparing:
		return s.finalizePreparing(ctx, env, inst)
	case model.InstanceStateRemoving:
		return s.finalizeTerminal(ctx, env, inst, model.InstanceStateRemoved)
	case model.InstanceStateCanceling:
		return s.finalizeTerminal(ctx, env, inst, model.InstanceStateCanceled)
	default:
		s.logger.WithContext(ctx).Error("unexpected task completion",
			zap.String("uuid", inst.Uuid), zap.String("state", inst.State))
		s.setState(inst, model.InstanceStateError)
		inst.Reason = fmt.Sprintf("unexpected task completion in state %s", inst.State)
		if err := s.instanceRepo.Update(ctx, inst); err != nil {
			return err
		}
		return s.sched.Cancel(ctx, scheduler.TaskTypeStateCheck, inst.Uuid)
	}
}

func (s *lifecycleService) finalizePreparing(ctx context.Context, env *backend.Env, inst *model.Instance) error {
	if inst.DestroyAfter != 0 {
		// the user let go before it ever became usable
		return s.destroyFrom(ctx, env, inst, []string{model.InstanceStatePreparing})
	}

	mgr, err := s.osmgrReg.ForPool(env.Pool)
	if err != nil {
		return s.failEarly(ctx, inst, err)
	}

	if s.isPublicationStale(env, inst) && !mgr.IsPersistent() {
		s.setState(inst, model.InstanceStateRemovable)
		s.logger.WithContext(ctx).Info("instance finished on a stale publication",
			zap.String("uuid", inst.Uuid))
		return s.instanceRepo.Update(ctx, inst)
	}

	// second level spares sit powered off; guest readiness only applies
	// once they are promoted
	needsManager := env.Pool.OsManagerType != osmgr.TypeNone && inst.CacheLevel != model.CacheLevelL2
	if needsManager {
		osState, err := mgr.CheckState(ctx, inst)
		if err != nil || osState == backend.TaskError {
			if err == nil {
				err = fmt.Errorf("os manager %s reported failure", mgr.Type())
			}
			return s.failEarly(ctx, inst, err)
		}
		if osState == backend.TaskRunning {
			// still booting; the agent's ready callback re-enters here
			inst.OsState = model.OsStatePreparing
			return s.instanceRepo.Update(ctx, inst)
		}
	}

	inst.OsState = model.OsStateUsable
	s.setState(inst, model.InstanceStateUsable)
	if err := s.instanceRepo.Update(ctx, inst); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("instance ready",
		zap.String("uuid", inst.Uuid),
		zap.Int8("cache_level", inst.CacheLevel))
	return nil
}

func (s *lifecycleService) finalizeTerminal(ctx context.Context, env *backend.Env, inst *model.Instance, terminal string) error {
	if mgr, err := s.osmgrReg.ForPool(env.Pool); err == nil {
		if rerr := mgr.Release(ctx, inst); rerr != nil {
			s.logger.WithContext(ctx).Warn("os manager release failed",
				zap.String("uuid", inst.Uuid), zap.Error(rerr))
		}
	}
	s.setState(inst, terminal)
	inst.InUse = 0
	if err := s.instanceRepo.Update(ctx, inst); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("instance finalized",
		zap.String("uuid", inst.Uuid), zap.String("state", terminal))
	return s.sched.Cancel(ctx, scheduler.TaskTypeStateCheck, inst.Uuid)
}

// failEarly records a failure that happened before or outside a backend
// task (bad configuration, unknown backend type).
func (s *lifecycleService) failEarly(ctx context.Context, inst *model.Instance, cause error) error {
	s.logger.WithContext(ctx).Error("instance operation failed",
		zap.String("uuid", inst.Uuid), zap.Error(cause))
	s.setState(inst, model.InstanceStateError)
	inst.Reason = truncateReason(cause.Error())
	if err := s.instanceRepo.Update(ctx, inst); err != nil {
		return err
	}
	return cause
}

func (s *lifecycleService) envForPool(ctx context.Context, pool *model.Pool) (*backend.Env, error) {
	provider, err := s.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("pool %s references missing provider %d", pool.Uuid, pool.ProviderID)
	}
	env := &backend.Env{Provider: provider, Pool: pool}
	if pool.ActivePublicationID != nil {
		pub, err := s.publicationRepo.GetByID(ctx, *pool.ActivePublicationID)
		if err != nil {
			return nil, err
		}
		env.Publication = pub
	}
	return env, nil
}

func (s *lifecycleService) ResolveEnv(ctx context.Context, inst *model.Instance) (*backend.Env, error) {
	return s.buildEnv(ctx, inst)
}

// buildEnv resolves the instance's own deployment environment. The
// publication is the one the instance was created from, not the pool's
// current one: an operation in flight keeps cloning from the artifact it
// started with.
func (s *lifecycleService) buildEnv(ctx context.Context, inst *model.Instance) (*backend.Env, error) {
	pool, err := s.poolRepo.GetByID(ctx, inst.PoolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("instance %s references missing pool %d", inst.Uuid, inst.PoolID)
	}
	provider, err := s.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("pool %s references missing provider %d", pool.Uuid, pool.ProviderID)
	}
	env := &backend.Env{Provider: provider, Pool: pool}
	if inst.PublicationID != nil {
		pub, err := s.publicationRepo.GetByID(ctx, *inst.PublicationID)
		if err != nil {
			return nil, err
		}
		env.Publication = pub
	}
	return env, nil
}

func (s *lifecycleService) isPublicationStale(env *backend.Env, inst *model.Instance) bool {
	if env.Pool.ActivePublicationID == nil {
		return false
	}
	return inst.PublicationID == nil || *inst.PublicationID != *env.Pool.ActivePublicationID
}

func (s *lifecycleService) setState(inst *model.Instance, state string) {
	inst.State = state
	inst.StateDate = time.Now()
}

func truncateReason(reason string) string {
	if len(reason) > 250 {
		return reason[:250]
	}
	return reason
}
