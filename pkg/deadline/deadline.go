// Package deadline implements the soft per-stage time budget. Stages check it
// between work units and stop cleanly, keeping what they already committed.
package deadline

import (
	"errors"
	"time"
)

// ErrDeadline is returned by Check once the budget is spent.
var ErrDeadline = errors.New("stage deadline reached")

// Deadline is a cooperative time budget. A nil *Deadline never expires.
type Deadline struct {
	end time.Time
	now func() time.Time
}

// New returns a Deadline that expires after d. d <= 0 means no limit.
func New(d time.Duration) *Deadline {
	if d <= 0 {
		return nil
	}
	return &Deadline{end: time.Now().Add(d), now: time.Now}
}

// At returns a Deadline expiring at end, reading time from now (nil for the wall clock).
func At(end time.Time, now func() time.Time) *Deadline {
	if now == nil {
		now = time.Now
	}
	return &Deadline{end: end, now: now}
}

// Expired reports whether the budget is spent.
func (d *Deadline) Expired() bool {
	if d == nil {
		return false
	}
	return !d.now().Before(d.end)
}

// Remaining returns the time left, or a negative value once expired.
// A nil Deadline reports the maximum duration.
func (d *Deadline) Remaining() time.Duration {
	if d == nil {
		return time.Duration(1<<63 - 1)
	}
	return d.end.Sub(d.now())
}

// Check returns ErrDeadline once the budget is spent.
func (d *Deadline) Check() error {
	if d.Expired() {
		return ErrDeadline
	}
	return nil
}
