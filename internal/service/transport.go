package service

import (
	"context"
	"net"
	"strings"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/duke-git/lancet/v2/random"
	"go.uber.org/zap"
)

type TransportService interface {
	Create(ctx context.Context, req *v1.CreateTransportRequest) (*model.Transport, error)
	Update(ctx context.Context, uuid string, req *v1.UpdateTransportRequest) (*model.Transport, error)
	GetByUuid(ctx context.Context, uuid string) (*model.Transport, error)
	List(ctx context.Context) ([]*model.Transport, error)
	Delete(ctx context.Context, uuid string) error

	// ListCompatible returns the transports usable from srcIP for the given
	// OS, best priority first.
	ListCompatible(ctx context.Context, os, srcIP string) ([]*model.Transport, error)
}

func NewTransportService(
	service *Service,
	transportRepo repository.TransportRepository,
	logger *log.Logger,
) TransportService {
	return &transportService{
		Service:       service,
		transportRepo: transportRepo,
		logger:        logger,
	}
}

type transportService struct {
	*Service
	transportRepo repository.TransportRepository
	logger        *log.Logger
}

func (s *transportService) Create(ctx context.Context, req *v1.CreateTransportRequest) (*model.Transport, error) {
	if err := validateNetFilter(req.NetFilter); err != nil {
		return nil, v1.ErrBadRequest
	}
	uuid, err := random.UUIdV4()
	if err != nil {
		return nil, err
	}
	transport := &model.Transport{
		Uuid:          uuid,
		Name:          req.Name,
		Comments:      req.Comments,
		Protocol:      req.Protocol,
		Priority:      req.Priority,
		AllowedOses:   req.AllowedOses,
		NetFilter:     req.NetFilter,
		NetFilterMode: model.NetFilterModeAllow,
	}
	if req.NetFilterMode != "" {
		transport.NetFilterMode = req.NetFilterMode
	}
	if err := s.transportRepo.Create(ctx, transport); err != nil {
		return nil, err
	}
	return transport, nil
}

func (s *transportService) Update(ctx context.Context, uuid string, req *v1.UpdateTransportRequest) (*model.Transport, error) {
	transport, err := s.transportRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, v1.ErrNotFound
	}
	if req.Name != nil {
		transport.Name = *req.Name
	}
	if req.Comments != nil {
		transport.Comments = *req.Comments
	}
	if req.Protocol != nil {
		transport.Protocol = *req.Protocol
	}
	if req.Priority != nil {
		transport.Priority = *req.Priority
	}
	if req.AllowedOses != nil {
		transport.AllowedOses = *req.AllowedOses
	}
	if req.NetFilter != nil {
		if err := validateNetFilter(*req.NetFilter); err != nil {
			return nil, v1.ErrBadRequest
		}
		transport.NetFilter = *req.NetFilter
	}
	if req.NetFilterMode != nil {
		transport.NetFilterMode = *req.NetFilterMode
	}
	if err := s.transportRepo.Update(ctx, transport); err != nil {
		return nil, err
	}
	return transport, nil
}

func (s *transportService) GetByUuid(ctx context.Context, uuid string) (*model.Transport, error) {
	transport, err := s.transportRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, v1.ErrNotFound
	}
	return transport, nil
}

func (s *transportService) List(ctx context.Context) ([]*model.Transport, error) {
	return s.transportRepo.List(ctx)
}

func (s *transportService) Delete(ctx context.Context, uuid string) error {
	transport, err := s.transportRepo.GetByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	if transport == nil {
		return v1.ErrNotFound
	}
	return s.transportRepo.Delete(ctx, transport.Id)
}

func (s *transportService) ListCompatible(ctx context.Context, os, srcIP string) ([]*model.Transport, error) {
	transports, err := s.transportRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	compatible := make([]*model.Transport, 0, len(transports))
	for _, t := range transports {
		ok, err := Compatible(t, os, srcIP)
		if err != nil {
			s.logger.WithContext(ctx).Warn("transport with broken filter skipped",
				zap.String("uuid", t.Uuid), zap.Error(err))
			continue
		}
		if ok {
			compatible = append(compatible, t)
		}
	}
	return compatible, nil
}

// Compatible decides whether a transport may serve a client: the OS must be
// listed (an empty list allows all) and the source address must pass the
// CIDR filter under the transport's mode.
func Compatible(t *model.Transport, os, srcIP string) (bool, error) {
	if !osAllowed(t.AllowedOses, os) {
		return false, nil
	}
	if strings.TrimSpace(t.NetFilter) == "" {
		return true, nil
	}
	ip := net.ParseIP(strings.TrimSpace(srcIP))
	if ip == nil {
		// unknown source; only deny-mode filters let it through
		return t.NetFilterMode == model.NetFilterModeDeny, nil
	}
	matched, err := cidrMatch(t.NetFilter, ip)
	if err != nil {
		return false, err
	}
	if t.NetFilterMode == model.NetFilterModeDeny {
		return !matched, nil
	}
	return matched, nil
}

func osAllowed(allowedCsv, os string) bool {
	allowed := strings.TrimSpace(allowedCsv)
	if allowed == "" {
		return true
	}
	for _, tag := range strings.Split(allowed, ",") {
		if strings.EqualFold(strings.TrimSpace(tag), strings.TrimSpace(os)) {
			return true
		}
	}
	return false
}

func cidrMatch(filterCsv string, ip net.IP) (bool, error) {
	for _, raw := range strings.Split(filterCsv, ",") {
		cidr := strings.TrimSpace(raw)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return false, err
		}
		if network.Contains(ip) {
			return true, nil
		}
	}
	return false, nil
}

func validateNetFilter(filterCsv string) error {
	for _, raw := range strings.Split(filterCsv, ",") {
		cidr := strings.TrimSpace(raw)
		if cidr == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return err
		}
	}
	return nil
}
