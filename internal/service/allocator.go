package service

import (
	"context"
	"sort"
	"time"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"

	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"
)

// claimRetries bounds how often a lost claim race is retried before the
// tier is given up on.
const claimRetries = 3

// AllocatorService hands out instances. Requests drain the cache tiers
// before a new machine is originated, so the common case never waits on the
// backend.
type AllocatorService interface {
	Allocate(ctx context.Context, pool *model.Pool, user *model.User) (*model.Instance, error)
	AllocateFromMeta(ctx context.Context, meta *model.MetaPool, user *model.User) (*model.Instance, *model.Pool, error)
}

func NewAllocatorService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.PoolRepository,
	providerRepo repository.ProviderRepository,
	metaPoolRepo repository.MetaPoolRepository,
	statsRepo repository.StatsRepository,
	lifecycle LifecycleService,
	admission AdmissionService,
	poolCache PoolCacheService,
	logger *log.Logger,
) AllocatorService {
	return &allocatorService{
		Service:      service,
		instanceRepo: instanceRepo,
		poolRepo:     poolRepo,
		providerRepo: providerRepo,
		metaPoolRepo: metaPoolRepo,
		statsRepo:    statsRepo,
		lifecycle:    lifecycle,
		admission:    admission,
		poolCache:    poolCache,
		logger:       logger,
	}
}

type allocatorService struct {
	*Service
	instanceRepo repository.InstanceRepository
	poolRepo     repository.PoolRepository
	providerRepo repository.ProviderRepository
	metaPoolRepo repository.MetaPoolRepository
	statsRepo    repository.StatsRepository
	lifecycle    LifecycleService
	admission    AdmissionService
	poolCache    PoolCacheService
	logger       *log.Logger
}

// Allocate serves one request from a single pool. Tiers, cheapest first:
// reuse the user's existing assignment, claim a warm spare (fully ready,
// then still settling, then still preparing), and only then originate a new
// machine on the backend.
func (s *allocatorService) Allocate(ctx context.Context, pool *model.Pool, user *model.User) (*model.Instance, error) {
	provider, err := s.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, v1.ErrInvalidService
	}
	if provider.Maintenance != 0 {
		return nil, v1.ErrInMaintenance
	}
	if pool.Status != model.PoolStatusActive {
		return nil, v1.ErrServiceNotReady
	}
	if pool.FallbackAccess == model.FallbackAccessDeny && user.IsAdmin == 0 {
		return nil, v1.ErrAccessDenied
	}

	if pool.SpawnsNew == 0 {
		existing, err := s.instanceRepo.GetAssignedToUser(ctx, pool.Id, user.Id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	restrained, err := s.poolCache.IsRestrained(ctx, pool)
	if err != nil {
		return nil, err
	}
	if restrained {
		return nil, v1.ErrPoolRestrained
	}

	// warm spares, strictest readiness first
	claimTiers := []struct {
		states   []string
		osStates []string
	}{
		{[]string{model.InstanceStateUsable}, []string{model.OsStateUsable}},
		{[]string{model.InstanceStateUsable}, nil},
		{[]string{model.InstanceStatePreparing}, nil},
	}
	for _, tier := range claimTiers {
		inst, err := s.claim(ctx, pool, user, model.CacheLevelL1, tier.states, tier.osStates)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			s.recordEvent(ctx, pool, model.CacheEventHit, model.CacheLevelL1)
			s.logger.WithContext(ctx).Info("cache claim",
				zap.String("pool", pool.Uuid),
				zap.String("uuid", inst.Uuid),
				zap.String("state", inst.State))
			return inst, nil
		}
	}

	if pool.MaxInstances > 0 {
		assigned, err := s.instanceRepo.CountAssigned(ctx, pool.Id)
		if err != nil {
			return nil, err
		}
		if assigned >= int64(pool.MaxInstances) {
			return nil, v1.ErrCapacityExceeded
		}
	}

	ok, err := s.admission.CanStartCreation(ctx, provider)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, v1.ErrCapacityExceeded
	}

	s.recordEvent(ctx, pool, model.CacheEventMiss, model.CacheLevelNone)
	inst, err := s.lifecycle.CreateAssigned(ctx, pool, user)
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Info("cache miss, originated",
		zap.String("pool", pool.Uuid), zap.String("uuid", inst.Uuid))
	return inst, nil
}

// claim races for one unowned spare. The candidate lookup locks the row,
// the assignment re-checks ownership; an affected-row count of zero means
// another request won and the next candidate is tried.
func (s *allocatorService) claim(ctx context.Context, pool *model.Pool, user *model.User, level int8, states, osStates []string) (*model.Instance, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		var claimed *model.Instance
		exhausted := false
		err := s.tm.Transaction(ctx, func(txCtx context.Context) error {
			cand, err := s.instanceRepo.FindClaimCandidate(txCtx, pool.Id, level, states, osStates)
			if err != nil {
				return err
			}
			if cand == nil {
				exhausted = true
				return nil
			}
			ok, err := s.instanceRepo.ClaimForUser(txCtx, cand.Id, user.Id)
			if err != nil {
				return err
			}
			if ok {
				cand.UserID = &user.Id
				cand.CacheLevel = model.CacheLevelNone
				claimed = cand
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
		if exhausted {
			return nil, nil
		}
	}
	return nil, nil
}

// AllocateFromMeta spreads a request over the meta pool's members, ranked by
// its policy, until one of them serves it. The pool the winning instance
// came from is returned alongside it.
func (s *allocatorService) AllocateFromMeta(ctx context.Context, meta *model.MetaPool, user *model.User) (*model.Instance, *model.Pool, error) {
	members, err := s.metaPoolRepo.ListMembers(ctx, meta.Id)
	if err != nil {
		return nil, nil, err
	}
	poolIDs := make([]int64, 0, len(members))
	for _, m := range members {
		if m.Enabled != 0 {
			poolIDs = append(poolIDs, m.PoolID)
		}
	}
	if len(poolIDs) == 0 {
		return nil, nil, v1.ErrServiceNotReady
	}
	pools, err := s.poolRepo.GetByIDs(ctx, poolIDs)
	if err != nil {
		return nil, nil, err
	}
	poolsByID := make(map[int64]*model.Pool, len(pools))
	for _, p := range pools {
		poolsByID[p.Id] = p
	}

	// an assignment in any member wins, unless HA says its provider is out
	if existing, err := s.instanceRepo.GetAssignedToUserInPools(ctx, user.Id, poolIDs); err != nil {
		return nil, nil, err
	} else if existing != nil {
		pool := poolsByID[existing.PoolID]
		if pool == nil {
			return nil, nil, v1.ErrInvalidService
		}
		if meta.HaPolicy == model.MetaHaEnabled {
			down, err := s.providerDown(ctx, pool)
			if err != nil {
				return nil, nil, err
			}
			if down {
				s.logger.WithContext(ctx).Warn("releasing assignment on unavailable member",
					zap.String("meta", meta.Uuid), zap.String("uuid", existing.Uuid))
				if err := s.lifecycle.Release(ctx, existing); err != nil {
					s.logger.WithContext(ctx).Error("release of stale assignment failed",
						zap.String("uuid", existing.Uuid), zap.Error(err))
				}
			} else {
				return existing, pool, nil
			}
		} else {
			return existing, pool, nil
		}
	}

	ranked, err := s.rankMembers(ctx, meta, members, poolsByID)
	if err != nil {
		return nil, nil, err
	}
	var lastErr error
	for _, pool := range ranked {
		if meta.HaPolicy == model.MetaHaEnabled {
			down, err := s.providerDown(ctx, pool)
			if err != nil {
				return nil, nil, err
			}
			if down {
				continue
			}
		}
		inst, err := s.Allocate(ctx, pool, user)
		if err != nil {
			s.logger.WithContext(ctx).Info("meta member declined",
				zap.String("meta", meta.Uuid),
				zap.String("pool", pool.Uuid),
				zap.Error(err))
			lastErr = err
			continue
		}
		return inst, pool, nil
	}
	if lastErr != nil {
		return nil, nil, lastErr
	}
	return nil, nil, v1.ErrServiceNotReady
}

// rankMembers orders the member pools by the meta policy. Lower key sorts
// first: priority uses the member priority, most_free the percent of
// capacity in use, random a shuffled order.
func (s *allocatorService) rankMembers(ctx context.Context, meta *model.MetaPool, members []*model.MetaPoolMember, poolsByID map[int64]*model.Pool) ([]*model.Pool, error) {
	type entry struct {
		pool *model.Pool
		key  float64
	}
	entries := make([]entry, 0, len(members))
	for _, m := range members {
		if m.Enabled == 0 {
			continue
		}
		pool := poolsByID[m.PoolID]
		if pool == nil || pool.Status != model.PoolStatusActive {
			continue
		}
		e := entry{pool: pool}
		switch meta.Policy {
		case model.MetaPolicyMostFree:
			// unlimited pools sort as empty
			if pool.MaxInstances > 0 {
				assigned, err := s.instanceRepo.CountAssigned(ctx, pool.Id)
				if err != nil {
					return nil, err
				}
				e.key = float64(assigned) / float64(pool.MaxInstances)
			}
		case model.MetaPolicyRandom:
			// order comes from the shuffle below
		default:
			e.key = float64(m.Priority)
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
	ranked := make([]*model.Pool, len(entries))
	for i, e := range entries {
		ranked[i] = e.pool
	}
	if meta.Policy == model.MetaPolicyRandom {
		return slice.Shuffle(ranked), nil
	}
	return ranked, nil
}

func (s *allocatorService) providerDown(ctx context.Context, pool *model.Pool) (bool, error) {
	provider, err := s.providerRepo.GetByID(ctx, pool.ProviderID)
	if err != nil {
		return false, err
	}
	return provider == nil || provider.Maintenance != 0, nil
}

// recordEvent sinks one hit/miss sample with the tier occupancy at that
// moment. Fire and forget; allocation never fails on observability.
func (s *allocatorService) recordEvent(ctx context.Context, pool *model.Pool, kind string, level int8) {
	counts, err := s.poolCache.Counts(ctx, pool)
	if err != nil {
		s.logger.WithContext(ctx).Warn("cache event counts unavailable", zap.Error(err))
		return
	}
	s.statsRepo.RecordCacheEvent(ctx, &model.CacheEvent{
		PoolUuid:      pool.Uuid,
		Kind:          kind,
		Level:         level,
		L1Count:       counts.L1,
		L2Count:       counts.L2,
		AssignedCount: counts.Assigned,
		At:            time.Now(),
	})
}
