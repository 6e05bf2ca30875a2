package service

import (
	"context"
	"time"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/spf13/viper"
)

// CacheAction is the evaluator's verdict for one cache tier.
type CacheAction int8

const (
	CacheActionNone CacheAction = iota
	CacheActionGrow
	CacheActionOverflow
)

func (a CacheAction) String() string {
	switch a {
	case CacheActionGrow:
		return "grow"
	case CacheActionOverflow:
		return "overflow"
	}
	return "none"
}

// CacheDecision carries the verdict per tier; the tiers are evaluated
// independently.
type CacheDecision struct {
	L1 CacheAction
	L2 CacheAction
}

// CacheCounts is a pool's live occupancy by tier.
type CacheCounts struct {
	L1       int64
	L2       int64
	Assigned int64
}

// CacheDeltas lets a caller ask hypothetical questions ("if this instance
// were released into L1, would the tier overflow?") without writing anything.
type CacheDeltas struct {
	L1       int64
	L2       int64
	Assigned int64
}

// PoolCacheService sizes the warm spare tiers of a pool. It only decides;
// acting on the decision belongs to the cache updater job and the release
// path.
type PoolCacheService interface {
	// IsRestrained reports whether the pool accumulated too many recent
	// deployment errors and should refuse new work for a while.
	IsRestrained(ctx context.Context, pool *model.Pool) (bool, error)
	Counts(ctx context.Context, pool *model.Pool) (CacheCounts, error)
	Evaluate(ctx context.Context, pool *model.Pool, provider *model.Provider, deltas CacheDeltas) (CacheDecision, error)
	// PickOverflowVictim locks the oldest idle cache instance of the level
	// for demotion or removal. Call inside a transaction.
	PickOverflowVictim(ctx context.Context, pool *model.Pool, level int8) (*model.Instance, error)
}

func NewPoolCacheService(
	service *Service,
	conf *viper.Viper,
	instanceRepo repository.InstanceRepository,
	publicationRepo repository.PublicationRepository,
	logger *log.Logger,
) PoolCacheService {
	restraintCount := conf.GetInt64("lifecycle.restraint.count")
	if restraintCount == 0 {
		restraintCount = 3
	}
	restraintWindow := conf.GetDuration("lifecycle.restraint.window")
	if restraintWindow == 0 {
		restraintWindow = 10 * time.Minute
	}
	return &poolCacheService{
		Service:         service,
		instanceRepo:    instanceRepo,
		publicationRepo: publicationRepo,
		logger:          logger,
		restraintCount:  restraintCount,
		restraintWindow: restraintWindow,
	}
}

type poolCacheService struct {
	*Service
	instanceRepo    repository.InstanceRepository
	publicationRepo repository.PublicationRepository
	logger          *log.Logger

	// restraintCount errors within restraintWindow restrain the pool;
	// a window of zero disables restraining entirely
	restraintCount  int64
	restraintWindow time.Duration
}

func (s *poolCacheService) IsRestrained(ctx context.Context, pool *model.Pool) (bool, error) {
	if s.restraintWindow <= 0 {
		return false, nil
	}
	errs, err := s.instanceRepo.CountErrorsSince(ctx, pool.Id, time.Now().Add(-s.restraintWindow))
	if err != nil {
		return false, err
	}
	return errs >= s.restraintCount, nil
}

func (s *poolCacheService) Counts(ctx context.Context, pool *model.Pool) (CacheCounts, error) {
	var counts CacheCounts
	var err error
	if counts.L1, err = s.instanceRepo.CountCached(ctx, pool.Id, model.CacheLevelL1); err != nil {
		return counts, err
	}
	if counts.L2, err = s.instanceRepo.CountCached(ctx, pool.Id, model.CacheLevelL2); err != nil {
		return counts, err
	}
	if counts.Assigned, err = s.instanceRepo.CountAssigned(ctx, pool.Id); err != nil {
		return counts, err
	}
	return counts, nil
}

// Evaluate compares the pool's occupancy, adjusted by deltas, against its
// configured tier targets.
//
// The first level must hold at least cache_l1 spares, and together with the
// assigned instances at least initial_instances; anything beyond both bounds
// is overflow. The second level is independent: exactly cache_l2 cold
// spares. Growth requires free room under max_instances, and a pool already
// past that ceiling is overflow outright, whatever the tier targets say.
func (s *poolCacheService) Evaluate(ctx context.Context, pool *model.Pool, provider *model.Provider, deltas CacheDeltas) (CacheDecision, error) {
	decision := CacheDecision{}

	skip, err := s.shortCircuit(ctx, pool, provider)
	if err != nil || skip {
		return decision, err
	}

	counts, err := s.Counts(ctx, pool)
	if err != nil {
		return decision, err
	}
	l1 := counts.L1 + deltas.L1
	l2 := counts.L2 + deltas.L2
	assigned := counts.Assigned + deltas.Assigned

	bounded := pool.MaxInstances > 0
	room := int64(-1) // unlimited
	if bounded {
		room = int64(pool.MaxInstances) - (assigned + l1)
	}

	initial := int64(pool.InitialInstances)
	targetL1 := int64(pool.CacheL1)
	switch {
	case bounded && room < 0:
		decision.L1 = CacheActionOverflow
	case l1 < targetL1 || l1+assigned < initial:
		if !bounded || room > 0 {
			decision.L1 = CacheActionGrow
		}
	case l1 > targetL1 && l1+assigned > initial:
		decision.L1 = CacheActionOverflow
	}

	targetL2 := int64(pool.CacheL2)
	switch {
	case l2 < targetL2:
		decision.L2 = CacheActionGrow
	case l2 > targetL2:
		decision.L2 = CacheActionOverflow
	}

	return decision, nil
}

// shortCircuit covers the situations where sizing the cache makes no sense:
// nothing to clone from, the pool is being republished or removed, recent
// errors restrained it, the provider is down for maintenance, or the pool
// keeps no spares at all.
func (s *poolCacheService) shortCircuit(ctx context.Context, pool *model.Pool, provider *model.Provider) (bool, error) {
	if !pool.UsesCache() {
		return true, nil
	}
	if pool.Status != model.PoolStatusActive {
		return true, nil
	}
	if provider.Maintenance != 0 {
		return true, nil
	}
	if pool.ActivePublicationID == nil && pool.TemplateID == "" {
		return true, nil
	}
	republishing, err := s.publicationRepo.ExistsPreparing(ctx, pool.Id)
	if err != nil {
		return false, err
	}
	if republishing {
		return true, nil
	}
	restrained, err := s.IsRestrained(ctx, pool)
	if err != nil {
		return false, err
	}
	return restrained, nil
}

func (s *poolCacheService) PickOverflowVictim(ctx context.Context, pool *model.Pool, level int8) (*model.Instance, error) {
	return s.instanceRepo.FindOverflowVictim(ctx, pool.Id, level)
}
