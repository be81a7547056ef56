// Package retry holds the pure retry decisions shared by the read and
// write paths: whether a failed attempt is worth repeating and how long to
// back off before it.
package retry

import (
	"math/rand"
	"time"

	"github.com/accesstrails/trailsync/remote"
)

// Policy decides retries for one logical operation. The zero value is not
// usable; start from DefaultPolicy and adjust.
type Policy struct {
	// MaxAttempts bounds how many times an operation may run.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; it doubles each attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means uncapped.
	MaxDelay time.Duration

	// Jitter adds up to 10% random slack to each delay to avoid
	// synchronized retries from many clients.
	Jitter bool
}

// DefaultPolicy matches the backoff used across the app's fetch paths.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   750 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// ShouldRetry reports whether the failed attempt (0-based) should run
// again: the error must be transient and attempts must remain.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts-1 {
		return false
	}
	return remote.IsTransient(err)
}

// DelayFor returns the wait before retrying after the given attempt:
// BaseDelay * 2^attempt, capped at MaxDelay.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter {
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
	}
	return delay
}
