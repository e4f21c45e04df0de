package request

import (
	"context"
	"testing"
	"time"
)

func TestProviderBackoff_ExponentialDelay(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantMinMs int64
		wantMaxMs int64
	}{
		{"First failure", 1, 900, 1200},
		{"Second failure", 2, 1900, 2400},
		{"Third failure", 3, 3900, 4800},
		{"Max cap hit", 10, 29900, 33000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewProviderBackoff(1*time.Second, 30*time.Second)
			for i := 0; i < tt.failures; i++ {
				b.RecordFailure("serpapi")
			}

			fc, nextAllowed := b.GetState("serpapi")
			if fc != tt.failures {
				t.Errorf("failureCount = %d, want %d", fc, tt.failures)
			}
			delayMs := time.Until(nextAllowed).Milliseconds()
			if delayMs < tt.wantMinMs || delayMs > tt.wantMaxMs {
				t.Errorf("delay = %dms, want between %dms and %dms", delayMs, tt.wantMinMs, tt.wantMaxMs)
			}
		})
	}
}

func TestProviderBackoff_GradualRecovery(t *testing.T) {
	b := NewProviderBackoff(1*time.Second, 30*time.Second)
	for i := 0; i < 3; i++ {
		b.RecordFailure("nominatim")
	}

	b.RecordSuccess("nominatim")
	if fc, _ := b.GetState("nominatim"); fc != 2 {
		t.Errorf("after 1 success, count = %d, want 2", fc)
	}

	b.RecordSuccess("nominatim")
	b.RecordSuccess("nominatim")
	fc, next := b.GetState("nominatim")
	if fc != 0 || !next.IsZero() {
		t.Errorf("after full recovery, count = %d next = %v", fc, next)
	}
}

func TestProviderBackoff_IsolatedProviders(t *testing.T) {
	b := NewProviderBackoff(1*time.Second, 30*time.Second)
	b.RecordFailure("serpapi")
	b.RecordFailure("serpapi")

	if fc, _ := b.GetState("serpapi"); fc != 2 {
		t.Errorf("serpapi failures = %d, want 2", fc)
	}
	if fc, _ := b.GetState("nominatim"); fc != 0 {
		t.Errorf("nominatim failures = %d, want 0 (isolated)", fc)
	}
}

func TestProviderBackoff_WaitHonorsContext(t *testing.T) {
	b := NewProviderBackoff(10*time.Second, 30*time.Second)
	b.RecordFailure("google-maps")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := b.Wait(ctx, "google-maps"); err == nil {
		t.Error("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait ignored the context deadline")
	}
	if err := b.Wait(context.Background(), "unknown"); err != nil {
		t.Errorf("unknown provider should not wait: %v", err)
	}
}
