package service

import (
	"context"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/osmgr"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"go.uber.org/zap"
)

// AgentCallbackService receives what guest agents report inward. Every call
// is authenticated by the per-instance secret seeded at deployment; there is
// no user identity on this path.
type AgentCallbackService interface {
	Ready(ctx context.Context, req *v1.AgentReadyRequest) error
	Login(ctx context.Context, req *v1.AgentLoginRequest) error
	Logout(ctx context.Context, req *v1.AgentLogoutRequest) error
}

func NewAgentCallbackService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.PoolRepository,
	osmgrReg *osmgr.Registry,
	lifecycle LifecycleService,
	logger *log.Logger,
) AgentCallbackService {
	return &agentCallbackService{
		Service:      service,
		instanceRepo: instanceRepo,
		poolRepo:     poolRepo,
		osmgrReg:     osmgrReg,
		lifecycle:    lifecycle,
		logger:       logger,
	}
}

type agentCallbackService struct {
	*Service
	instanceRepo repository.InstanceRepository
	poolRepo     repository.PoolRepository
	osmgrReg     *osmgr.Registry
	lifecycle    LifecycleService
	logger       *log.Logger
}

func (s *agentCallbackService) Ready(ctx context.Context, req *v1.AgentReadyRequest) error {
	inst, err := s.bySecret(ctx, req.Secret)
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("agent announced",
		zap.String("uuid", inst.Uuid),
		zap.String("ip", req.Ip),
		zap.String("version", req.Version))
	return s.lifecycle.NotifyReady(ctx, inst, req.Ip, req.Endpoint, req.Version)
}

func (s *agentCallbackService) Login(ctx context.Context, req *v1.AgentLoginRequest) error {
	inst, err := s.bySecret(ctx, req.Secret)
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("session opened",
		zap.String("uuid", inst.Uuid),
		zap.String("username", req.Username))
	return s.lifecycle.SetInUse(ctx, inst, true)
}

// Logout ends the session. Besides clearing the in-use flag this is where
// stale desktops get recycled: a released instance built from an old
// publication is replaced instead of waiting for the user to come back.
func (s *agentCallbackService) Logout(ctx context.Context, req *v1.AgentLogoutRequest) error {
	inst, err := s.bySecret(ctx, req.Secret)
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("session closed",
		zap.String("uuid", inst.Uuid),
		zap.String("username", req.Username))
	if err := s.lifecycle.SetInUse(ctx, inst, false); err != nil {
		return err
	}
	if model.InstanceStateIsTerminal(inst.State) || inst.State == model.InstanceStateRemoving {
		// destroy-after already took it down
		return nil
	}

	pool, err := s.poolRepo.GetByID(ctx, inst.PoolID)
	if err != nil {
		return err
	}
	if pool == nil {
		return nil
	}
	mgr, err := s.osmgrReg.ForPool(pool)
	if err != nil {
		return err
	}
	stale := pool.ActivePublicationID != nil &&
		(inst.PublicationID == nil || *inst.PublicationID != *pool.ActivePublicationID)
	if stale && !mgr.IsPersistent() && inst.UserID != nil {
		s.logger.WithContext(ctx).Info("recycling stale desktop on logout",
			zap.String("uuid", inst.Uuid))
		return s.lifecycle.Release(ctx, inst)
	}
	return nil
}

func (s *agentCallbackService) bySecret(ctx context.Context, secret string) (*model.Instance, error) {
	if secret == "" {
		return nil, v1.ErrUnauthorized
	}
	inst, err := s.instanceRepo.GetByCommsSecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, v1.ErrUnauthorized
	}
	return inst, nil
}
