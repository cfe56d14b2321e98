package analytics

import (
	"math"
	"math/rand"
	"time"
)

// retryDelay computes the backoff before the next send attempt of an event
// that has failed retries times. The delay doubles per failure from base up
// to max, with +/-50% jitter so retrying events from many clients do not
// align into synchronized bursts.
func retryDelay(base, max time.Duration, retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}

	delay := float64(base) * math.Pow(2, float64(retries-1))
	if delay > float64(max) {
		delay = float64(max)
	}

	jitter := 0.5 + rand.Float64() // 0.5x to 1.5x
	jittered := time.Duration(delay * jitter)
	if jittered > max {
		jittered = max
	}
	if jittered < base/2 {
		jittered = base / 2
	}
	return jittered
}
