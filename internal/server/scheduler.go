package server

import (
	"context"

	"vdisphere/internal/scheduler"
	"vdisphere/pkg/log"
)

type SchedulerServer struct {
	runner *scheduler.Runner
	log    *log.Logger
}

func NewSchedulerServer(
	log *log.Logger,
	runner *scheduler.Runner,
) *SchedulerServer {
	return &SchedulerServer{
		runner: runner,
		log:    log,
	}
}

func (s *SchedulerServer) Start(ctx context.Context) error {
	s.log.Info("starting scheduler server")
	return s.runner.Start(ctx)
}

func (s *SchedulerServer) Stop(ctx context.Context) error {
	s.log.Info("stopping scheduler server")
	return s.runner.Stop(ctx)
}
