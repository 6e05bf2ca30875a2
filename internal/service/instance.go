package service

import (
	"context"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/agent"
	"vdisphere/pkg/log"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// InstanceService is the administrative surface over instances: listing,
// forced lifecycle transitions and guest agent commands.
type InstanceService interface {
	List(ctx context.Context, req *v1.ListInstanceRequest) ([]v1.InstanceItem, int64, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Instance, error)

	Remove(ctx context.Context, uuid string) error
	Cancel(ctx context.Context, uuid string) error
	Release(ctx context.Context, uuid string) error
	Reset(ctx context.Context, uuid string) error

	Screenshot(ctx context.Context, uuid string) (string, error)
	SendMessage(ctx context.Context, uuid, text string) error

	// ConsoleDial opens a raw console stream to the instance for the
	// websocket proxy. Only backends with console support can serve it.
	ConsoleDial(ctx context.Context, uuid string) (*websocket.Conn, error)
}

func NewInstanceService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.PoolRepository,
	userRepo repository.UserRepository,
	lifecycle LifecycleService,
	backendReg *backend.Registry,
	logger *log.Logger,
) InstanceService {
	return &instanceService{
		Service:      service,
		instanceRepo: instanceRepo,
		poolRepo:     poolRepo,
		userRepo:     userRepo,
		lifecycle:    lifecycle,
		backendReg:   backendReg,
		logger:       logger,
	}
}

type instanceService struct {
	*Service
	instanceRepo repository.InstanceRepository
	poolRepo     repository.PoolRepository
	userRepo     repository.UserRepository
	lifecycle    LifecycleService
	backendReg   *backend.Registry
	logger       *log.Logger
}

func (s *instanceService) List(ctx context.Context, req *v1.ListInstanceRequest) ([]v1.InstanceItem, int64, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 10
	}

	var poolID int64
	if req.PoolUuid != "" {
		pool, err := s.poolRepo.GetByUuid(ctx, req.PoolUuid)
		if err != nil {
			return nil, 0, err
		}
		if pool == nil {
			return nil, 0, v1.ErrNotFound
		}
		poolID = pool.Id
	}
	var userID int64
	if req.UserId != "" {
		user, err := s.userRepo.GetByID(ctx, req.UserId)
		if err != nil {
			return nil, 0, err
		}
		if user == nil {
			return nil, 0, v1.ErrNotFound
		}
		userID = user.Id
	}

	insts, total, err := s.instanceRepo.ListWithPagination(ctx, page, pageSize, poolID, req.State, userID)
	if err != nil {
		return nil, 0, err
	}

	poolNames := make(map[int64]*model.Pool)
	userIDs := make([]int64, 0, len(insts))
	for _, inst := range insts {
		if _, ok := poolNames[inst.PoolID]; !ok {
			pool, err := s.poolRepo.GetByID(ctx, inst.PoolID)
			if err != nil {
				return nil, 0, err
			}
			poolNames[inst.PoolID] = pool
		}
		if inst.UserID != nil {
			userIDs = append(userIDs, *inst.UserID)
		}
	}
	users, err := s.userRepo.ListByInternalIDs(ctx, userIDs)
	if err != nil {
		return nil, 0, err
	}
	usersByID := make(map[int64]*model.User, len(users))
	for _, u := range users {
		usersByID[u.Id] = u
	}

	items := make([]v1.InstanceItem, 0, len(insts))
	for _, inst := range insts {
		item := v1.InstanceItem{
			Id:           inst.Id,
			Uuid:         inst.Uuid,
			State:        inst.State,
			OsState:      inst.OsState,
			CacheLevel:   inst.CacheLevel,
			StateDate:    inst.StateDate,
			InUse:        inst.InUse,
			InUseDate:    inst.InUseDate,
			DestroyAfter: inst.DestroyAfter,
			UniqueID:     inst.UniqueID,
			FriendlyName: inst.FriendlyName,
			KnownIP:      inst.KnownIP,
			AgentVersion: inst.AgentVersion,
			Reason:       inst.Reason,
			CreateTime:   inst.CreateTime,
		}
		if pool := poolNames[inst.PoolID]; pool != nil {
			item.PoolUuid = pool.Uuid
			item.PoolName = pool.Name
		}
		if inst.UserID != nil {
			if u := usersByID[*inst.UserID]; u != nil {
				item.UserId = u.UserId
			}
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *instanceService) GetByUuid(ctx context.Context, uuid string) (*model.Instance, error) {
	inst, err := s.instanceRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, v1.ErrInstanceNotFound
	}
	return inst, nil
}

func (s *instanceService) Remove(ctx context.Context, uuid string) error {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	return s.lifecycle.Remove(ctx, inst)
}

func (s *instanceService) Cancel(ctx context.Context, uuid string) error {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	return s.lifecycle.Cancel(ctx, inst)
}

func (s *instanceService) Release(ctx context.Context, uuid string) error {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	return s.lifecycle.Release(ctx, inst)
}

func (s *instanceService) Reset(ctx context.Context, uuid string) error {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	return s.lifecycle.Reset(ctx, inst)
}

func (s *instanceService) Screenshot(ctx context.Context, uuid string) (string, error) {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return "", err
	}
	client, err := s.agentFor(inst)
	if err != nil {
		return "", err
	}
	image, err := client.Screenshot(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Warn("screenshot failed",
			zap.String("uuid", inst.Uuid), zap.Error(err))
		return "", v1.ErrAgentUnreachable
	}
	return image, nil
}

func (s *instanceService) SendMessage(ctx context.Context, uuid, text string) error {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	client, err := s.agentFor(inst)
	if err != nil {
		return err
	}
	if err := client.Message(ctx, text); err != nil {
		s.logger.WithContext(ctx).Warn("message delivery failed",
			zap.String("uuid", inst.Uuid), zap.Error(err))
		return v1.ErrAgentUnreachable
	}
	return nil
}

func (s *instanceService) ConsoleDial(ctx context.Context, uuid string) (*websocket.Conn, error) {
	inst, err := s.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if inst.State != model.InstanceStateUsable && inst.State != model.InstanceStatePreparing {
		return nil, v1.ErrOperationNotAllowed
	}
	env, err := s.lifecycle.ResolveEnv(ctx, inst)
	if err != nil {
		return nil, err
	}
	be, err := s.backendReg.New(env, s.logger)
	if err != nil {
		return nil, err
	}
	console, ok := be.(backend.ConsoleBackend)
	if !ok {
		return nil, v1.ErrOperationNotAllowed
	}
	return console.ConsoleDial(ctx, inst)
}

func (s *instanceService) agentFor(inst *model.Instance) (*agent.Client, error) {
	client, err := agent.New(inst.CommsEndpoint, inst.CommsSecret, inst.AgentVersion)
	if err != nil {
		return nil, v1.ErrAgentUnreachable
	}
	return client, nil
}
