package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"vdisphere/internal/backend"
	"vdisphere/internal/model"
	"vdisphere/internal/osmgr"
	"vdisphere/internal/repository"
	"vdisphere/internal/scheduler"
	"vdisphere/pkg/log"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const fakeBackendType = "fake"

// fakeBackend is a scripted backend shared by the service tests. Outcomes
// are set per operation; every call is recorded.
type fakeBackend struct {
	mu sync.Mutex

	deployOutcome  backend.TaskState
	deployErr      error
	checkOutcome   backend.TaskState
	checkErr       error
	destroyOutcome backend.TaskState
	destroyErr     error
	cancelOutcome  backend.TaskState
	cancelErr      error
	moveOutcome    backend.TaskState
	resetOutcome   backend.TaskState

	delay time.Duration
	calls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		deployOutcome:  backend.TaskRunning,
		checkOutcome:   backend.TaskRunning,
		destroyOutcome: backend.TaskRunning,
		cancelOutcome:  backend.TaskRunning,
		moveOutcome:    backend.TaskRunning,
		resetOutcome:   backend.TaskFinished,
		delay:          time.Millisecond,
	}
}

func (f *fakeBackend) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeBackend) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Type() string { return fakeBackendType }

func (f *fakeBackend) DeployForUser(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	f.record("deploy_for_user")
	inst.UniqueID = "vm-" + inst.Uuid[:8]
	return f.deployOutcome, f.deployErr
}

func (f *fakeBackend) DeployForCache(ctx context.Context, inst *model.Instance, level int8) (backend.TaskState, error) {
	f.record("deploy_for_cache")
	inst.UniqueID = "vm-" + inst.Uuid[:8]
	return f.deployOutcome, f.deployErr
}

func (f *fakeBackend) MoveToCache(ctx context.Context, inst *model.Instance, level int8) (backend.TaskState, error) {
	f.record("move_to_cache")
	return f.moveOutcome, nil
}

func (f *fakeBackend) CheckState(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	f.record("check_state")
	return f.checkOutcome, f.checkErr
}

func (f *fakeBackend) Destroy(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	f.record("destroy")
	return f.destroyOutcome, f.destroyErr
}

func (f *fakeBackend) Cancel(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	f.record("cancel")
	return f.cancelOutcome, f.cancelErr
}

func (f *fakeBackend) Reset(ctx context.Context, inst *model.Instance) (backend.TaskState, error) {
	f.record("reset")
	return f.resetOutcome, nil
}

func (f *fakeBackend) SuggestedDelay() time.Duration { return f.delay }

// fakeCache is an in-memory CacheRepository with real expiry.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]fakeCacheEntry
	gets    int
	sets    int
}

type fakeCacheEntry struct {
	value   string
	expires time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]fakeCacheEntry)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = fakeCacheEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// fakeStats collects cache events instead of writing them to mongo.
type fakeStats struct {
	mu     sync.Mutex
	events []*model.CacheEvent
}

func (s *fakeStats) RecordCacheEvent(ctx context.Context, event *model.CacheEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeStats) ListCacheEvents(ctx context.Context, poolUuid string, since time.Time, limit int64) ([]*model.CacheEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.CacheEvent(nil), s.events...), nil
}

func (s *fakeStats) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

type testEnv struct {
	ctx context.Context

	db    *gorm.DB
	repo  *repository.Repository
	conf  *viper.Viper
	be    *fakeBackend
	cache *fakeCache
	stats *fakeStats

	instances repository.InstanceRepository
	pools     repository.PoolRepository
	providers repository.ProviderRepository
	pubs      repository.PublicationRepository
	metas     repository.MetaPoolRepository
	tasks     repository.DelayedTaskRepository

	sched     *scheduler.Scheduler
	lifecycle LifecycleService
	admission AdmissionService
	poolCache PoolCacheService
	allocator AllocatorService
}

func testLogger() *log.Logger {
	return &log.Logger{Logger: zap.NewNop()}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection, so every session sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Provider{},
		&model.Pool{},
		&model.Publication{},
		&model.Instance{},
		&model.MetaPool{},
		&model.MetaPoolMember{},
		&model.Transport{},
		&model.DelayedTask{},
	))

	logger := testLogger()
	repo := repository.NewRepository(logger, db, nil)
	tm := repository.NewTransaction(repo)
	base := NewService(tm, logger, nil, nil)

	env := &testEnv{
		ctx:       context.Background(),
		db:        db,
		repo:      repo,
		conf:      viper.New(),
		be:        newFakeBackend(),
		cache:     newFakeCache(),
		stats:     &fakeStats{},
		instances: repository.NewInstanceRepository(repo),
		pools:     repository.NewPoolRepository(repo),
		providers: repository.NewProviderRepository(repo),
		pubs:      repository.NewPublicationRepository(repo),
		metas:     repository.NewMetaPoolRepository(repo),
		tasks:     repository.NewDelayedTaskRepository(repo),
	}

	backendReg := backend.NewRegistry(logger)
	backendReg.Register(fakeBackendType, func(e *backend.Env, l *log.Logger) (backend.Backend, error) {
		return env.be, nil
	})
	osmgrReg := osmgr.NewRegistry()

	env.sched = scheduler.NewScheduler(env.tasks, env.instances, logger)
	env.poolCache = NewPoolCacheService(base, env.conf, env.instances, env.pubs, logger)
	env.lifecycle = NewLifecycleService(base, env.instances, env.pools, env.providers, env.pubs,
		backendReg, osmgrReg, env.sched, env.poolCache, logger)
	env.admission = NewAdmissionService(base, env.instances, env.cache, logger)
	env.allocator = NewAllocatorService(base, env.instances, env.pools, env.providers, env.metas,
		env.stats, env.lifecycle, env.admission, env.poolCache, logger)
	return env
}

var seedSeq int

func nextSeq() int {
	seedSeq++
	return seedSeq
}

func (e *testEnv) seedProvider(t *testing.T, fns ...func(*model.Provider)) *model.Provider {
	t.Helper()
	n := nextSeq()
	p := &model.Provider{
		Uuid:                    fmt.Sprintf("prov-%04d", n),
		Name:                    fmt.Sprintf("provider %d", n),
		Type:                    fakeBackendType,
		ConcurrentCreationLimit: 10,
		ConcurrentRemovalLimit:  8,
	}
	for _, fn := range fns {
		fn(p)
	}
	require.NoError(t, e.providers.Create(e.ctx, p))
	return p
}

func (e *testEnv) seedPool(t *testing.T, provider *model.Provider, fns ...func(*model.Pool)) *model.Pool {
	t.Helper()
	n := nextSeq()
	p := &model.Pool{
		Uuid:          fmt.Sprintf("pool-%04d", n),
		Name:          fmt.Sprintf("pool %d", n),
		ProviderID:    provider.Id,
		Status:        model.PoolStatusActive,
		OsManagerType: osmgr.TypeNone,
		TemplateID:    "tmpl-100",
	}
	for _, fn := range fns {
		fn(p)
	}
	require.NoError(t, e.pools.Create(e.ctx, p))
	return p
}

func (e *testEnv) seedPublication(t *testing.T, pool *model.Pool, active bool, fns ...func(*model.Publication)) *model.Publication {
	t.Helper()
	n := nextSeq()
	pub := &model.Publication{
		Uuid:        fmt.Sprintf("pub-%04d", n),
		PoolID:      pool.Id,
		Revision:    n,
		State:       model.PublicationStateUsable,
		UniqueID:    fmt.Sprintf("tmpl-%d", n),
		PublishDate: time.Now(),
	}
	for _, fn := range fns {
		fn(pub)
	}
	require.NoError(t, e.pubs.Create(e.ctx, pub))
	if active {
		pool.ActivePublicationID = &pub.Id
		require.NoError(t, e.pools.Update(e.ctx, pool))
	}
	return pub
}

func (e *testEnv) seedUser(t *testing.T) *model.User {
	t.Helper()
	n := nextSeq()
	u := &model.User{
		UserId:   fmt.Sprintf("u-%04d", n),
		Nickname: fmt.Sprintf("user %d", n),
		Email:    fmt.Sprintf("user%d@test.local", n),
		Password: "x",
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) seedInstance(t *testing.T, pool *model.Pool, fns ...func(*model.Instance)) *model.Instance {
	t.Helper()
	n := nextSeq()
	inst := &model.Instance{
		Uuid:       fmt.Sprintf("inst-%04d", n),
		PoolID:     pool.Id,
		State:      model.InstanceStateUsable,
		OsState:    model.OsStateUsable,
		CacheLevel: model.CacheLevelNone,
		StateDate:  time.Now().Add(-time.Duration(n) * time.Second),
		UniqueID:   fmt.Sprintf("vm-%d", n),
	}
	if pool.ActivePublicationID != nil {
		id := *pool.ActivePublicationID
		inst.PublicationID = &id
	}
	for _, fn := range fns {
		fn(inst)
	}
	require.NoError(t, e.instances.Create(e.ctx, inst))
	return inst
}

// reload fetches the instance's current row.
func (e *testEnv) reload(t *testing.T, inst *model.Instance) *model.Instance {
	t.Helper()
	got, err := e.instances.GetByUuid(e.ctx, inst.Uuid)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func (e *testEnv) pendingTasks(t *testing.T, uuid string) int64 {
	t.Helper()
	n, err := e.tasks.CountByInstance(e.ctx, uuid)
	require.NoError(t, err)
	return n
}
