package scheduler

import (
	"context"
	"time"

	"vdisphere/pkg/log"

	"github.com/spf13/viper"
)

// Runner polls the delayed task table and fires due tasks. Multiple runner
// processes may point at the same database; the claim semantics keep them
// from stepping on each other.
type Runner struct {
	scheduler *Scheduler
	logger    *log.Logger
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewRunner(scheduler *Scheduler, logger *log.Logger, conf *viper.Viper) *Runner {
	interval := conf.GetDuration("scheduler.interval")
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Runner{
		scheduler: scheduler,
		logger:    logger,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("starting delayed task runner")
	ctx, r.cancel = context.WithCancel(ctx)
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.scheduler.RunDue(ctx)
		}
	}
}

func (r *Runner) Stop(ctx context.Context) error {
	r.logger.Info("stopping delayed task runner")
	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
