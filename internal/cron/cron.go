// Package cron runs periodic background jobs, such as the reset sweep, on
// 5-field cron expressions.
package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a valid 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// FuncJob adapts a plain function to Job.
type FuncJob struct {
	JobName      string
	ScheduleExpr string
	Fn           func(ctx context.Context) error
}

// Compile-time interface check.
var _ Job = (*FuncJob)(nil)

// Name implements Job.
func (f *FuncJob) Name() string { return f.JobName }

// Schedule implements Job.
func (f *FuncJob) Schedule() string { return f.ScheduleExpr }

// Run implements Job.
func (f *FuncJob) Run(ctx context.Context) error { return f.Fn(ctx) }
