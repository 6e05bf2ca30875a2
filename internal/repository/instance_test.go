package repository

import (
	"context"
	"testing"
	"time"

	"vdisphere/internal/model"
	"vdisphere/pkg/log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testLogger() *log.Logger {
	return &log.Logger{Logger: zap.NewNop()}
}

// newMockRepository backs the repository with sqlmock, for asserting the
// exact shape of the conditional updates.
func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(testLogger(), db, nil), mock
}

// newSqliteRepository backs the repository with an in-memory database, for
// behavioral tests.
func newSqliteRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Instance{}, &model.Pool{}, &model.DelayedTask{}))
	return NewRepository(testLogger(), db, nil)
}

func TestClaimForUserGuardsOwnership(t *testing.T) {
	repo, mock := newMockRepository(t)
	r := NewInstanceRepository(repo)

	// the claim must re-check `user_id IS NULL` inside the UPDATE itself
	mock.ExpectExec("UPDATE `instances` SET .* WHERE id = .* AND user_id IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := r.ClaimForUser(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimForUserLostRace(t *testing.T) {
	repo, mock := newMockRepository(t)
	r := NewInstanceRepository(repo)

	// zero affected rows is the "someone else won" outcome, not an error
	mock.ExpectExec("UPDATE `instances` SET .* WHERE id = .* AND user_id IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.ClaimForUser(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCasStateChecksOriginState(t *testing.T) {
	repo, mock := newMockRepository(t)
	r := NewInstanceRepository(repo)

	mock.ExpectExec("UPDATE `instances` SET .* WHERE id = .* AND state IN \\(\\?,\\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.CasState(context.Background(), 7,
		[]string{model.InstanceStateUsable, model.InstanceStateRemovable},
		model.InstanceStateRemoving)
	require.NoError(t, err)
	assert.False(t, ok, "a state change from elsewhere must refuse the transition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTransitionsBothFields(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewInstanceRepository(repo)
	ctx := context.Background()

	inst := &model.Instance{
		Uuid:       "claim-1",
		PoolID:     1,
		State:      model.InstanceStateUsable,
		OsState:    model.OsStateUsable,
		CacheLevel: model.CacheLevelL1,
		StateDate:  time.Now(),
	}
	require.NoError(t, r.Create(ctx, inst))

	ok, err := r.ClaimForUser(ctx, inst.Id, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	row, err := r.GetByID(ctx, inst.Id)
	require.NoError(t, err)
	require.NotNil(t, row.UserID)
	assert.EqualValues(t, 42, *row.UserID)
	assert.Equal(t, model.CacheLevelNone, row.CacheLevel, "user and tier flip in the same update")

	// the second claimer loses
	ok, err = r.ClaimForUser(ctx, inst.Id, 43)
	require.NoError(t, err)
	assert.False(t, ok)
	row, err = r.GetByID(ctx, inst.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 42, *row.UserID)
}

func TestFindClaimCandidateFilters(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewInstanceRepository(repo)
	ctx := context.Background()

	owner := int64(9)
	seed := []struct {
		uuid    string
		level   int8
		state   string
		osState string
		user    *int64
		age     time.Duration
	}{
		{"assigned", model.CacheLevelL1, model.InstanceStateUsable, model.OsStateUsable, &owner, 5 * time.Hour},
		{"l2-spare", model.CacheLevelL2, model.InstanceStateUsable, model.OsStateUsable, nil, 4 * time.Hour},
		{"settling", model.CacheLevelL1, model.InstanceStateUsable, model.OsStatePreparing, nil, 3 * time.Hour},
		{"ready-old", model.CacheLevelL1, model.InstanceStateUsable, model.OsStateUsable, nil, 2 * time.Hour},
		{"ready-new", model.CacheLevelL1, model.InstanceStateUsable, model.OsStateUsable, nil, time.Hour},
	}
	for _, s := range seed {
		require.NoError(t, r.Create(ctx, &model.Instance{
			Uuid:       s.uuid,
			PoolID:     1,
			State:      s.state,
			OsState:    s.osState,
			CacheLevel: s.level,
			UserID:     s.user,
			StateDate:  time.Now().Add(-s.age),
		}))
	}

	got, err := r.FindClaimCandidate(ctx, 1, model.CacheLevelL1,
		[]string{model.InstanceStateUsable}, []string{model.OsStateUsable})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ready-old", got.Uuid, "unowned, fully ready, oldest first")

	// relaxing the os filter lets the settling spare through
	got, err = r.FindClaimCandidate(ctx, 1, model.CacheLevelL1,
		[]string{model.InstanceStateUsable}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "settling", got.Uuid)

	got, err = r.FindClaimCandidate(ctx, 2, model.CacheLevelL1,
		[]string{model.InstanceStateUsable}, nil)
	require.NoError(t, err)
	assert.Nil(t, got, "a miss is nil, not an error")
}

func TestCountAssignedExcludesTerminal(t *testing.T) {
	repo := newSqliteRepository(t)
	r := NewInstanceRepository(repo)
	ctx := context.Background()

	owner := int64(9)
	for _, s := range []string{
		model.InstanceStatePreparing,
		model.InstanceStateUsable,
		model.InstanceStateRemoved,
		model.InstanceStateError,
	} {
		require.NoError(t, r.Create(ctx, &model.Instance{
			Uuid:      "count-" + s,
			PoolID:    1,
			State:     s,
			OsState:   model.OsStatePreparing,
			UserID:    &owner,
			StateDate: time.Now(),
		}))
	}

	count, err := r.CountAssigned(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "terminal rows never count against the ceiling")
}
