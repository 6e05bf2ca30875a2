package service

import (
	"context"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/agent"
	"vdisphere/pkg/log"

	"go.uber.org/zap"
)

// AccessService is the user-facing entry: one call resolves a pool or meta
// pool into a concrete instance plus the transports to reach it. Connect is
// idempotent; clients poll it while their desktop finishes preparing.
type AccessService interface {
	Connect(ctx context.Context, userId string, req *v1.ConnectRequest, srcIP string) (*v1.ConnectResponseData, error)
}

func NewAccessService(
	service *Service,
	userRepo repository.UserRepository,
	poolRepo repository.PoolRepository,
	metaPoolRepo repository.MetaPoolRepository,
	allocator AllocatorService,
	transports TransportService,
	logger *log.Logger,
) AccessService {
	return &accessService{
		Service:      service,
		userRepo:     userRepo,
		poolRepo:     poolRepo,
		metaPoolRepo: metaPoolRepo,
		allocator:    allocator,
		transports:   transports,
		logger:       logger,
	}
}

type accessService struct {
	*Service
	userRepo     repository.UserRepository
	poolRepo     repository.PoolRepository
	metaPoolRepo repository.MetaPoolRepository
	allocator    AllocatorService
	transports   TransportService
	logger       *log.Logger
}

func (s *accessService) Connect(ctx context.Context, userId string, req *v1.ConnectRequest, srcIP string) (*v1.ConnectResponseData, error) {
	user, err := s.userRepo.GetByID(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, v1.ErrUnauthorized
	}

	// no point allocating a desktop the caller cannot reach
	compatible, err := s.transports.ListCompatible(ctx, req.Os, srcIP)
	if err != nil {
		return nil, err
	}
	if len(compatible) == 0 {
		return nil, v1.ErrTransportNotFound
	}

	inst, err := s.resolve(ctx, req.PoolUuid, user)
	if err != nil {
		return nil, err
	}

	data := &v1.ConnectResponseData{
		InstanceUuid: inst.Uuid,
		State:        inst.State,
		OsState:      inst.OsState,
		Ready:        inst.State == model.InstanceStateUsable && inst.OsState == model.OsStateUsable,
		Ip:           inst.KnownIP,
	}
	for _, t := range compatible {
		data.Transports = append(data.Transports, v1.TransportOffer{
			Uuid:     t.Uuid,
			Name:     t.Name,
			Protocol: t.Protocol,
			Priority: t.Priority,
		})
	}

	if data.Ready {
		s.preConnect(ctx, inst, user, compatible[0].Protocol)
	}
	return data, nil
}

// resolve looks the uuid up as a pool first, then as a meta pool.
func (s *accessService) resolve(ctx context.Context, uuid string, user *model.User) (*model.Instance, error) {
	pool, err := s.poolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		return s.allocator.Allocate(ctx, pool, user)
	}
	meta, err := s.metaPoolRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, v1.ErrInvalidService
	}
	inst, _, err := s.allocator.AllocateFromMeta(ctx, meta, user)
	return inst, err
}

// preConnect warns the guest agent a session is about to attach. Best
// effort; missing or old agents never block a connect.
func (s *accessService) preConnect(ctx context.Context, inst *model.Instance, user *model.User, protocol string) {
	client, err := agent.New(inst.CommsEndpoint, inst.CommsSecret, inst.AgentVersion)
	if err != nil {
		return
	}
	if err := client.PreConnect(ctx, user.Nickname, protocol); err != nil {
		s.logger.WithContext(ctx).Info("preconnect not delivered",
			zap.String("uuid", inst.Uuid), zap.Error(err))
	}
}
