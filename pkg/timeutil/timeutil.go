// Package timeutil provides UTC time helpers and a Clock abstraction so
// time-dependent logic (ready windows, cache TTLs, session cutoffs) is
// testable with a frozen clock.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock; always UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FrozenClock is a settable clock for tests.
type FrozenClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFrozenClock creates a clock stopped at t.
func NewFrozenClock(t time.Time) *FrozenClock {
	return &FrozenClock{t: t.UTC()}
}

// Now returns the frozen time.
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the frozen clock forward.
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set jumps the frozen clock to t.
func (c *FrozenClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t.UTC()
}

// Now returns the current UTC time.
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns 00:00:00 UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// DaysBetween calculates the absolute number of UTC days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// ElapsedSeconds is the whole-second span from start to now, clamped at zero.
func ElapsedSeconds(start, now time.Time) int {
	secs := int(now.Sub(start).Seconds())
	if secs < 0 {
		secs = 0
	}
	return secs
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTimeSeconds is the standard datetime format with seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatRelative returns a human-readable relative time string.
func FormatRelative(t time.Time) string {
	d := time.Now().UTC().Sub(t.UTC())
	future := d < 0
	if future {
		d = -d
	}

	var phrase string
	switch {
	case d < time.Minute:
		if future {
			return "now"
		}
		return "just now"
	case d < time.Hour:
		phrase = fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		phrase = fmt.Sprintf("%dh", int(d.Hours()))
	default:
		phrase = fmt.Sprintf("%dd", int(d.Hours()/24))
	}

	if future {
		return "in " + phrase
	}
	return phrase + " ago"
}
