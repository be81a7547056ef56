// Package fetch implements the resilient read path: each attempt races the
// primary query against a timeout, falls back to the secondary replica
// read, and the whole attempt is retried with exponential backoff while
// the failure stays transient. Successful results land in the shared
// result cache.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/accesstrails/trailsync/cache"
	"github.com/accesstrails/trailsync/remote"
	"github.com/accesstrails/trailsync/retry"
)

// QueryFunc is one read against a single source.
type QueryFunc func(ctx context.Context) ([]remote.Record, error)

// ExhaustedError reports that every attempt failed transiently. The caller
// can distinguish "might work later" from a terminal failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// attemptError carries both failures of one attempt. The primary error
// comes first so classification sees a primary timeout even when the
// fallback failed terminally.
type attemptError struct {
	primary  error
	fallback error
}

func (e *attemptError) Error() string {
	return fmt.Sprintf("primary: %v; fallback: %v", e.primary, e.fallback)
}

func (e *attemptError) Unwrap() []error { return []error{e.primary, e.fallback} }

// Fetcher orchestrates retries and caching for remote reads.
type Fetcher struct {
	cache  *cache.Cache
	policy retry.Policy
	log    zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Option adjusts a Fetcher.
type Option func(*Fetcher)

// WithSleep replaces the backoff sleeper. Tests use this to avoid real
// waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New creates a Fetcher backed by the given result cache.
func New(c *cache.Cache, policy retry.Policy, log zerolog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		cache:  c,
		policy: policy,
		log:    log,
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the records for key, consulting the cache first. Concurrent
// calls for the same key share one fetch. Transient failures are retried
// per the policy; terminal failures surface immediately; exhausting the
// policy surfaces an ExhaustedError and leaves no cache entry.
func (f *Fetcher) Fetch(ctx context.Context, key string, primary, secondary QueryFunc, timeout time.Duration) (*cache.Entry, error) {
	return f.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]remote.Record, cache.Origin, error) {
		return f.attemptLoop(ctx, key, primary, secondary, timeout)
	})
}

// Refresh invalidates any cached entry for key and fetches fresh. Used by
// pull-to-refresh.
func (f *Fetcher) Refresh(ctx context.Context, key string, primary, secondary QueryFunc, timeout time.Duration) (*cache.Entry, error) {
	f.cache.Invalidate(key)
	return f.Fetch(ctx, key, primary, secondary, timeout)
}

// attemptLoop runs attempts as an explicit bounded loop so MaxAttempts
// enforcement is plain to verify and the stack stays flat.
func (f *Fetcher) attemptLoop(ctx context.Context, key string, primary, secondary QueryFunc, timeout time.Duration) ([]remote.Record, cache.Origin, error) {
	for attempt := 0; ; attempt++ {
		records, origin, err := f.attempt(ctx, primary, secondary, timeout)
		if err == nil {
			if origin == cache.OriginSecondary {
				f.log.Warn().Str("key", key).Int("attempt", attempt).Msg("served from secondary source")
			}
			return records, origin, nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}

		if !f.policy.ShouldRetry(err, attempt) {
			if remote.IsTransient(err) {
				f.log.Error().Str("key", key).Int("attempts", attempt+1).Err(err).Msg("fetch retries exhausted")
				return nil, 0, &ExhaustedError{Attempts: attempt + 1, Err: err}
			}
			f.log.Error().Str("key", key).Err(err).Msg("fetch failed terminally")
			return nil, 0, err
		}

		delay := f.policy.DelayFor(attempt)
		f.log.Warn().Str("key", key).Int("attempt", attempt).Dur("backoff", delay).Err(err).Msg("fetch attempt failed, retrying")
		if err := f.sleep(ctx, delay); err != nil {
			return nil, 0, err
		}
	}
}

// attempt races the primary query against the timeout and falls back to
// the secondary read once. The timeout is a race, not a cancellation: a
// primary result arriving late is discarded via the buffered channel and
// never reaches the cache.
func (f *Fetcher) attempt(ctx context.Context, primary, secondary QueryFunc, timeout time.Duration) ([]remote.Record, cache.Origin, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		records []remote.Record
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		records, err := primary(pctx)
		ch <- result{records, err}
	}()

	var perr error
	select {
	case r := <-ch:
		if r.err == nil {
			return r.records, cache.OriginPrimary, nil
		}
		perr = r.err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		perr = remote.NewError(remote.KindTimeout, "primary query", pctx.Err())
	}

	records, serr := secondary(ctx)
	if serr == nil {
		return records, cache.OriginSecondary, nil
	}
	return nil, 0, &attemptError{primary: perr, fallback: serr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
