// Package syncqueue holds writes that could not be confirmed as delivered:
// a durable, per-category FIFO drained when connectivity allows. An item
// leaves the queue only on acknowledged delivery.
package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Item is one pending outbound operation. Immutable once enqueued.
type Item struct {
	ID         string
	Category   string
	Payload    []byte
	EnqueuedAt time.Time
}

// Store is the durable backing for queue contents. Writes must complete
// before returning so an item survives a process restart the moment
// Enqueue returns. Delete of an absent id is a no-op.
type Store interface {
	Append(ctx context.Context, item Item) error
	Delete(ctx context.Context, category, id string) error
	Items(ctx context.Context, category string) ([]Item, error)
	Categories(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Deliverer is the remote write path items are drained through.
type Deliverer interface {
	Write(ctx context.Context, category string, payload []byte) error
}

// DrainResult summarizes one drain cycle for a category.
type DrainResult struct {
	Delivered int
	Remaining int
	// Skipped is set when a drain for the category was already running;
	// this cycle did nothing.
	Skipped bool
}

// Queue is the process-wide pending-sync queue. Construct one at startup
// and inject it; it has no implicit global state.
type Queue struct {
	store  Store
	remote Deliverer
	online func() bool
	log    zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	draining map[string]bool
}

// Option adjusts a Queue.
type Option func(*Queue)

// WithClock replaces the time source. Tests use this for stable
// EnqueuedAt values.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue. The online gate decides whether Enqueue may attempt
// opportunistic delivery; pass nil to never deliver on enqueue.
func New(store Store, remote Deliverer, online func() bool, log zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:    store,
		remote:   remote,
		online:   online,
		log:      log,
		now:      time.Now,
		draining: make(map[string]bool),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue durably appends a payload to its category FIFO and returns the
// item id. If the device is currently online it kicks off a drain for the
// category in the background without blocking the caller.
func (q *Queue) Enqueue(ctx context.Context, category string, payload []byte) (string, error) {
	item := Item{
		ID:         uuid.NewString(),
		Category:   category,
		Payload:    payload,
		EnqueuedAt: q.now().UTC(),
	}
	if err := q.store.Append(ctx, item); err != nil {
		return "", fmt.Errorf("persist sync item: %w", err)
	}
	q.log.Debug().Str("category", category).Str("id", item.ID).Msg("sync item enqueued")

	if q.online != nil && q.online() {
		dctx := context.WithoutCancel(ctx)
		go func() {
			if _, err := q.Drain(dctx, category); err != nil {
				q.log.Warn().Str("category", category).Err(err).Msg("opportunistic drain failed")
			}
		}()
	}
	return item.ID, nil
}

// Remove deletes an item after acknowledged delivery. Removing an id that
// is already gone is a no-op, so duplicate delivery confirmations are
// harmless.
func (q *Queue) Remove(ctx context.Context, category, id string) error {
	return q.store.Delete(ctx, category, id)
}

// PendingCount reports how many items across all categories still await
// delivery.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.Count(ctx)
}

// Drain attempts delivery of every pending item in the category, oldest
// first. The first failure stops the cycle so a later item is never
// delivered ahead of an earlier one that is still failing; the remainder
// waits for the next trigger. A drain already running for the category
// makes this call a no-op.
func (q *Queue) Drain(ctx context.Context, category string) (DrainResult, error) {
	q.mu.Lock()
	if q.draining[category] {
		q.mu.Unlock()
		return DrainResult{Skipped: true}, nil
	}
	q.draining[category] = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.draining, category)
		q.mu.Unlock()
	}()

	items, err := q.store.Items(ctx, category)
	if err != nil {
		return DrainResult{}, fmt.Errorf("load pending items: %w", err)
	}

	var res DrainResult
	for i, item := range items {
		if err := q.remote.Write(ctx, item.Category, item.Payload); err != nil {
			res.Remaining = len(items) - i
			q.log.Warn().Str("category", category).Str("id", item.ID).Err(err).
				Int("remaining", res.Remaining).Msg("delivery failed, stopping drain cycle")
			return res, nil
		}
		if err := q.Remove(ctx, item.Category, item.ID); err != nil {
			// the write is acknowledged; a failed remove must not cause
			// the next trigger to skip it silently
			res.Remaining = len(items) - i
			return res, fmt.Errorf("remove delivered item %s: %w", item.ID, err)
		}
		res.Delivered++
		q.log.Info().Str("category", category).Str("id", item.ID).Msg("sync item delivered")
	}
	return res, nil
}

// DrainAll drains every category that currently has pending items.
// Categories are independent; one category's failure does not stop the
// others.
func (q *Queue) DrainAll(ctx context.Context) (DrainResult, error) {
	categories, err := q.store.Categories(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("list categories: %w", err)
	}
	var total DrainResult
	for _, category := range categories {
		res, err := q.Drain(ctx, category)
		if err != nil {
			return total, err
		}
		total.Delivered += res.Delivered
		total.Remaining += res.Remaining
	}
	return total, nil
}
