//go:build wireinject
// +build wireinject

package wire

import (
	"vdisphere/internal/backend"
	"vdisphere/internal/job"
	"vdisphere/internal/osmgr"
	"vdisphere/internal/repository"
	"vdisphere/internal/scheduler"
	"vdisphere/internal/server"
	"vdisphere/internal/service"
	"vdisphere/pkg/app"
	"vdisphere/pkg/jwt"
	"vdisphere/pkg/log"
	"vdisphere/pkg/sid"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRedis,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewProviderRepository,
	repository.NewPoolRepository,
	repository.NewPublicationRepository,
	repository.NewInstanceRepository,
	repository.NewDelayedTaskRepository,
	repository.NewCacheRepository,
)

var backendSet = wire.NewSet(
	backend.NewRegistry,
	osmgr.NewRegistry,
	scheduler.NewScheduler,
	scheduler.NewRunner,
)

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewPoolCacheService,
	service.NewAdmissionService,
	service.NewLifecycleService,
)

var jobSet = wire.NewSet(
	job.NewJob,
	job.NewCacheUpdater,
	job.NewInstanceRemover,
	job.NewPoolCleaner,
	job.NewStuckChecker,
)

var serverSet = wire.NewSet(
	server.NewSchedulerServer,
	server.NewJobServer,
)

// build App
func newApp(
	schedulerServer *server.SchedulerServer,
	jobServer *server.JobServer,
) *app.App {
	return app.NewApp(
		app.WithServer(schedulerServer, jobServer),
		app.WithName("vdisphere-scheduler"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		backendSet,
		serviceSet,
		jobSet,
		serverSet,
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
