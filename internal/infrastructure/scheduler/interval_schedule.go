package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// IntervalSchedule runs a job at a fixed interval, optionally spread by a
// random jitter so several instances of the arena do not sweep in lockstep.
type IntervalSchedule struct {
	Interval time.Duration
	Jitter   time.Duration
}

// NewIntervalSchedule creates a fixed-interval schedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// NewJitteredSchedule creates a schedule firing every interval plus up to
// jitter of random spread.
func NewJitteredSchedule(interval, jitter time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval, Jitter: jitter}
}

// Next returns the next scheduled time after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	next := t.Add(s.Interval)
	if s.Jitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(s.Jitter))))
	}
	return next
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	if s.Jitter > 0 {
		return fmt.Sprintf("@every %s (±%s)", s.Interval, s.Jitter)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
