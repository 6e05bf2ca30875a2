package server

import (
	"context"
	"time"

	"vdisphere/internal/job"
	"vdisphere/pkg/log"

	"github.com/go-co-op/gocron"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type JobServer struct {
	log       *log.Logger
	conf      *viper.Viper
	scheduler *gocron.Scheduler

	cacheUpdater    *job.CacheUpdater
	instanceRemover *job.InstanceRemover
	poolCleaner     *job.PoolCleaner
	stuckChecker    *job.StuckChecker
}

func NewJobServer(
	log *log.Logger,
	conf *viper.Viper,
	cacheUpdater *job.CacheUpdater,
	instanceRemover *job.InstanceRemover,
	poolCleaner *job.PoolCleaner,
	stuckChecker *job.StuckChecker,
) *JobServer {
	return &JobServer{
		log:             log,
		conf:            conf,
		cacheUpdater:    cacheUpdater,
		instanceRemover: instanceRemover,
		poolCleaner:     poolCleaner,
		stuckChecker:    stuckChecker,
	}
}

func (s *JobServer) Start(ctx context.Context) error {
	gocron.SetPanicHandler(func(jobName string, recoverData interface{}) {
		s.log.Error("job panic", zap.String("job", jobName), zap.Any("recover", recoverData))
	})
	s.scheduler = gocron.NewScheduler(time.UTC)

	if err := s.register(ctx, "cache_updater", "jobs.cache_updater", 30*time.Second, s.cacheUpdater.Run); err != nil {
		return err
	}
	if err := s.register(ctx, "instance_remover", "jobs.instance_remover", 30*time.Second, s.instanceRemover.Run); err != nil {
		return err
	}
	if err := s.register(ctx, "pool_cleaner", "jobs.pool_cleaner", 3*time.Minute, s.poolCleaner.Run); err != nil {
		return err
	}
	if err := s.register(ctx, "stuck_checker", "jobs.stuck_checker", 5*time.Minute, s.stuckChecker.Run); err != nil {
		return err
	}

	s.scheduler.StartBlocking()
	return nil
}

func (s *JobServer) register(ctx context.Context, name, confKey string, fallback time.Duration, run func(context.Context) error) error {
	interval := s.conf.GetDuration(confKey)
	if interval <= 0 {
		interval = fallback
	}
	_, err := s.scheduler.Every(interval).Do(func() {
		if err := run(ctx); err != nil {
			s.log.Error("job run error", zap.String("job", name), zap.Error(err))
		}
	})
	return err
}

func (s *JobServer) Stop(ctx context.Context) error {
	s.log.Info("stopping job server")
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	return nil
}
