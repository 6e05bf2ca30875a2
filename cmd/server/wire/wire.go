//go:build wireinject
// +build wireinject

package wire

import (
	"vdisphere/internal/backend"
	"vdisphere/internal/handler"
	"vdisphere/internal/osmgr"
	"vdisphere/internal/repository"
	"vdisphere/internal/router"
	"vdisphere/internal/scheduler"
	"vdisphere/internal/server"
	"vdisphere/internal/service"
	"vdisphere/pkg/app"
	"vdisphere/pkg/jwt"
	"vdisphere/pkg/log"
	"vdisphere/pkg/server/http"
	"vdisphere/pkg/sid"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRedis,
	repository.NewMongo,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewUserRepository,
	repository.NewProviderRepository,
	repository.NewPoolRepository,
	repository.NewPublicationRepository,
	repository.NewInstanceRepository,
	repository.NewMetaPoolRepository,
	repository.NewTransportRepository,
	repository.NewDelayedTaskRepository,
	repository.NewCacheRepository,
	repository.NewStatsRepository,
)

var backendSet = wire.NewSet(
	backend.NewRegistry,
	osmgr.NewRegistry,
	scheduler.NewScheduler,
)

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewUserService,
	service.NewPoolCacheService,
	service.NewAdmissionService,
	service.NewLifecycleService,
	service.NewAllocatorService,
	service.NewProviderService,
	service.NewPoolService,
	service.NewMetaPoolService,
	service.NewTransportService,
	service.NewInstanceService,
	service.NewAccessService,
	service.NewAgentCallbackService,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewUserHandler,
	handler.NewAccessHandler,
	handler.NewAgentHandler,
	handler.NewProviderHandler,
	handler.NewPoolHandler,
	handler.NewMetaPoolHandler,
	handler.NewTransportHandler,
	handler.NewInstanceHandler,
)

var serverSet = wire.NewSet(
	server.NewHTTPServer,
)

// build App
func newApp(
	httpServer *http.Server,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer),
		app.WithName("vdisphere-server"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		backendSet,
		serviceSet,
		handlerSet,
		serverSet,
		wire.Struct(new(router.RouterDeps), "*"),
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
