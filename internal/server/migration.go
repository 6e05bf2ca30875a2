package server

import (
	"context"
	"os"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/pkg/log"
	"vdisphere/pkg/sid"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type MigrateServer struct {
	db       *gorm.DB
	log      *log.Logger
	userRepo repository.UserRepository
	sid      *sid.Sid
}

func NewMigrateServer(db *gorm.DB, log *log.Logger, userRepo repository.UserRepository, sid *sid.Sid) *MigrateServer {
	return &MigrateServer{
		db:       db,
		log:      log,
		userRepo: userRepo,
		sid:      sid,
	}
}

func (m *MigrateServer) Start(ctx context.Context) error {
	if err := m.db.AutoMigrate(
		&model.User{},
		&model.Provider{},
		&model.Pool{},
		&model.Publication{},
		&model.Instance{},
		&model.MetaPool{},
		&model.MetaPoolMember{},
		&model.Transport{},
		&model.DelayedTask{},
	); err != nil {
		m.log.Error("migrate error", zap.Error(err))
		return err
	}
	m.log.Info("AutoMigrate success")

	if err := m.createDefaultAdmin(ctx); err != nil {
		m.log.Error("create default admin error", zap.Error(err))
		return err
	}

	os.Exit(0)
	return nil
}

// createDefaultAdmin seeds the first administrator on an empty install so
// the API is reachable before any user exists.
func (m *MigrateServer) createDefaultAdmin(ctx context.Context) error {
	total, err := m.userRepo.Count(ctx)
	if err != nil {
		return err
	}
	if total > 0 {
		m.log.Info("users already present, skipping admin seed")
		return nil
	}

	defaultEmail := "admin@vdisphere.local"
	defaultPassword := "Ab123456"

	userId, err := m.sid.GenString()
	if err != nil {
		return err
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &model.User{
		UserId:   userId,
		Nickname: "VdiSphere Admin",
		Email:    defaultEmail,
		Password: string(hashedPassword),
		IsAdmin:  1,
	}
	if err := m.userRepo.Create(ctx, user); err != nil {
		return err
	}

	m.log.Info("default admin created",
		zap.String("email", defaultEmail),
		zap.String("userId", userId))
	return nil
}

func (m *MigrateServer) Stop(ctx context.Context) error {
	m.log.Info("AutoMigrate stop")
	return nil
}
