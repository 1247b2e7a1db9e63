// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/chanreset/internal/cron"
)

// Job is a cron.Job double that counts its runs. With Hold set, Run blocks
// until Hold is closed or ctx ends, keeping the job busy in between.
type Job struct {
	JobName      string
	ScheduleExpr string
	Err          error

	// Hold, when non-nil, blocks Run.
	Hold chan struct{}
	// Started, when non-nil, receives once per run before Run blocks.
	Started chan struct{}

	mu   sync.Mutex
	runs int
}

// Compile-time interface check.
var _ cron.Job = (*Job)(nil)

// Name implements cron.Job.
func (j *Job) Name() string { return j.JobName }

// Schedule implements cron.Job. It defaults to every minute.
func (j *Job) Schedule() string {
	if j.ScheduleExpr == "" {
		return "* * * * *"
	}
	return j.ScheduleExpr
}

// Run implements cron.Job.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()

	if j.Started != nil {
		j.Started <- struct{}{}
	}
	if j.Hold != nil {
		select {
		case <-j.Hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.Err
}

// Runs returns how many times Run was called.
func (j *Job) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}
