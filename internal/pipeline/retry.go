package pipeline

import (
	"time"

	"epub2mp3/internal/tts"
)

const (
	defaultBaseDelay    = time.Second
	defaultRateLimitCap = 60 * time.Second
	defaultTransientCap = 15 * time.Second
)

type retryPolicy struct {
	maxRetries   int
	baseDelay    time.Duration
	rateLimitCap time.Duration
	transientCap time.Duration
}

func newRetryPolicy(maxRetries int, baseDelay time.Duration) retryPolicy {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return retryPolicy{
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		rateLimitCap: defaultRateLimitCap,
		transientCap: defaultTransientCap,
	}
}

// nextAction decides what happens after a failed attempt. attempts is the
// number of attempts made so far (>= 1). When retry is true, the caller
// waits delay and tries again; attempts never exceed maxRetries+1.
func (p retryPolicy) nextAction(attempts int, err error) (delay time.Duration, retry bool) {
	kind := tts.Classify(err)
	if kind == tts.KindPermanent {
		return 0, false
	}
	if attempts > p.maxRetries {
		return 0, false
	}

	switch kind {
	case tts.KindRateLimited:
		// Exponential: a throttling endpoint wants us to stay away longer.
		// Large attempt counts would overflow the shift, so saturate at the
		// cap once the doubling passes it.
		delay = p.rateLimitCap
		if shift := attempts - 1; p.baseDelay < p.rateLimitCap>>shift {
			delay = p.baseDelay << shift
		}
		if after := tts.RetryAfter(err); after > delay {
			delay = after
		}
		if delay > p.rateLimitCap {
			delay = p.rateLimitCap
		}
	default:
		// Linear: one-off blips usually clear quickly.
		delay = p.baseDelay * time.Duration(attempts)
		if delay > p.transientCap {
			delay = p.transientCap
		}
	}
	return delay, true
}
