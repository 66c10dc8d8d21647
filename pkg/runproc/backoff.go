package runproc

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffDelay computes base * 2^retryCount by driving
// backoff.ExponentialBackOff.NextBackOff() retryCount+1 times and keeping
// the last value (spec.md §4.8's retry rule), rather than hand-rolling
// pow(2, n). This package remains the sole authority over the persisted
// Run.retryCount/state; the library only supplies the delay number.
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 24 * time.Hour // far beyond any real retryCount*base; maxRetries caps how far this goes
	b.MaxElapsedTime = 0
	// The constructor already reset the current interval to its own
	// default; reset again so the first NextBackOff returns base.
	b.Reset()

	var delay time.Duration
	for i := 0; i <= retryCount; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
