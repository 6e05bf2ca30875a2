package job

import (
	"vdisphere/pkg/log"
)

// Job carries what every background job shares. Jobs are single-purpose
// sweeps scheduled by the job server; each Run must tolerate being skipped
// or repeated, all real coordination happens through the database.
type Job struct {
	logger *log.Logger
}

func NewJob(logger *log.Logger) *Job {
	return &Job{logger: logger}
}
