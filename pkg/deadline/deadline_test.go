package deadline

import (
	"errors"
	"testing"
	"time"
)

func TestDeadline(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	d := At(base.Add(10*time.Second), func() time.Time { return now })

	if d.Expired() || d.Check() != nil {
		t.Fatal("fresh deadline should not be expired")
	}
	if d.Remaining() != 10*time.Second {
		t.Errorf("remaining = %v", d.Remaining())
	}

	now = base.Add(10 * time.Second)
	if !d.Expired() {
		t.Error("deadline should expire at its end time")
	}
	if !errors.Is(d.Check(), ErrDeadline) {
		t.Error("Check should return ErrDeadline")
	}
}

func TestNilDeadline(t *testing.T) {
	var d *Deadline
	if d.Expired() || d.Check() != nil {
		t.Error("nil deadline never expires")
	}
	if d.Remaining() <= 0 {
		t.Error("nil deadline has unlimited time")
	}
	if New(0) != nil {
		t.Error("New(0) should disable the deadline")
	}
	if New(time.Hour).Expired() {
		t.Error("one hour budget expired immediately")
	}
}
