package job

import (
	"context"
	"time"

	"vdisphere/internal/model"
	"vdisphere/internal/repository"
	"vdisphere/internal/service"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const stuckBatch = 32

// StuckChecker redrives instances whose transitional state outlived the
// configured deadline. Covers crashed workers and scheduler rows lost to
// failed transactions alike.
type StuckChecker struct {
	*Job
	instanceRepo repository.InstanceRepository
	lifecycle    service.LifecycleService
	maxStuckTime time.Duration
}

func NewStuckChecker(
	job *Job,
	conf *viper.Viper,
	instanceRepo repository.InstanceRepository,
	lifecycle service.LifecycleService,
) *StuckChecker {
	max := conf.GetDuration("lifecycle.max_stuck_time")
	if max <= 0 {
		max = 30 * time.Minute
	}
	return &StuckChecker{
		Job:          job,
		instanceRepo: instanceRepo,
		lifecycle:    lifecycle,
		maxStuckTime: max,
	}
}

func (j *StuckChecker) Run(ctx context.Context) error {
	states := []string{
		model.InstanceStatePreparing,
		model.InstanceStateRemoving,
		model.InstanceStateCanceling,
	}
	insts, err := j.instanceRepo.FindStuck(ctx, states, time.Now().Add(-j.maxStuckTime), stuckBatch)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if err := j.lifecycle.Redrive(ctx, inst); err != nil {
			j.logger.WithContext(ctx).Error("redrive failed",
				zap.String("uuid", inst.Uuid), zap.String("state", inst.State), zap.Error(err))
		}
	}
	return nil
}
