// Package backoff computes retry delays for redelivered work.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialJitter doubles base per attempt (1-indexed), caps the
// result at max, then spreads it by +/-20% so redeliveries from one
// incident do not arrive in lockstep.
func ExponentialJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	mul := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(base) * mul)
	if d <= 0 || d > max {
		d = max
	}

	j := float64(d) * 0.2
	return time.Duration(float64(d) - j + rand.Float64()*2*j)
}
