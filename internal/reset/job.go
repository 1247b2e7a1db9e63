package reset

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/chanreset/internal/cron"
)

// SweepJobName is the cron job name of the sweep.
const SweepJobName = "reset_sweep"

// SweepJob runs Scheduler.Sweep on a cron schedule.
type SweepJob struct {
	Scheduler    *Scheduler
	ScheduleExpr string // empty = default "* * * * *"

	last atomic.Pointer[SweepResult]
}

// Compile-time interface check.
var _ cron.Job = (*SweepJob)(nil)

// Name implements cron.Job.
func (j *SweepJob) Name() string { return SweepJobName }

// Schedule implements cron.Job.
func (j *SweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run implements cron.Job.
func (j *SweepJob) Run(ctx context.Context) error {
	res := j.Scheduler.Sweep(ctx)
	j.last.Store(&res)
	return ctx.Err()
}

// Last returns the result of the most recent run.
func (j *SweepJob) Last() SweepResult {
	if r := j.last.Load(); r != nil {
		return *r
	}
	return SweepResult{}
}
