package reset

import (
	"math/rand/v2"
	"time"
)

const (
	defaultMinDays = 1
	defaultMaxDays = 14
	day            = 24 * time.Hour
)

// DeadlinePolicy draws a whole number of days uniformly from
// [MinDays, MaxDays] and turns it into an absolute deadline.
type DeadlinePolicy struct {
	MinDays int
	MaxDays int
	// Intn returns a value in [0, n). Defaults to math/rand/v2.IntN.
	Intn func(n int) int
}

// Next returns the deadline for a task created at now, truncated to the
// millisecond precision of the persisted form.
func (p DeadlinePolicy) Next(now time.Time) time.Time {
	lo, hi := p.bounds()
	intn := p.Intn
	if intn == nil {
		intn = rand.IntN
	}
	days := lo + intn(hi-lo+1)
	return time.UnixMilli(now.Add(time.Duration(days) * day).UnixMilli())
}

func (p DeadlinePolicy) bounds() (int, int) {
	lo, hi := p.MinDays, p.MaxDays
	if lo <= 0 {
		lo = defaultMinDays
	}
	if hi <= 0 {
		hi = defaultMaxDays
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
