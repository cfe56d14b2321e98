package analytics

import (
	"testing"
	"time"
)

func TestRetryDelayBounds(t *testing.T) {
	base := 100 * time.Millisecond
	max := 10 * time.Second

	for retries := 1; retries <= 15; retries++ {
		for i := 0; i < 50; i++ {
			d := retryDelay(base, max, retries)
			if d < base/2 {
				t.Fatalf("retries=%d: delay %v below %v", retries, d, base/2)
			}
			if d > max {
				t.Fatalf("retries=%d: delay %v above cap %v", retries, d, max)
			}
		}
	}
}

func TestRetryDelayGrows(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Hour

	// With jitter in [0.5x, 1.5x], the minimum at retries=5 (8x base)
	// exceeds the maximum at retries=1 (1.5x base).
	low := retryDelay(base, max, 1)
	high := retryDelay(base, max, 5)
	if high <= low {
		t.Fatalf("delay did not grow: retries=1 -> %v, retries=5 -> %v", low, high)
	}
}

func TestRetryDelayClampsRetries(t *testing.T) {
	// Zero or negative retry counts are treated as the first retry.
	d := retryDelay(100*time.Millisecond, time.Second, 0)
	if d > 150*time.Millisecond {
		t.Fatalf("delay %v exceeds first-retry maximum", d)
	}
}
