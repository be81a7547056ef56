// Package deferred implements the deferred-sync facility: a one-shot
// request to drain a queue category that survives this process exiting,
// handed to the asynq worker. Where no broker is configured the Noop
// facility reports unavailable and the coordinator drains manually.
package deferred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/accesstrails/trailsync/internal/jobs"
)

// ErrUnavailable is returned by facilities that cannot register deferred
// work.
var ErrUnavailable = errors.New("deferred sync facility unavailable")

// Asynq registers drain tasks on the sync queue's broker.
type Asynq struct {
	client *asynq.Client
}

// NewAsynq connects to the broker at redisAddr.
func NewAsynq(redisAddr string) *Asynq {
	return &Asynq{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Available reports whether registrations can be accepted.
func (a *Asynq) Available() bool {
	return a != nil && a.client != nil
}

// Register enqueues a one-shot drain task for the category. The TaskID
// collapses duplicate registrations for the same category while one is
// still pending.
func (a *Asynq) Register(ctx context.Context, category string) error {
	if !a.Available() {
		return ErrUnavailable
	}
	payload, err := json.Marshal(jobs.DrainQueuePayload{Category: category})
	if err != nil {
		return fmt.Errorf("marshal drain payload: %w", err)
	}
	task := asynq.NewTask(jobs.TaskDrainQueue, payload)
	_, err = a.client.EnqueueContext(ctx, task,
		asynq.Queue("sync"),
		asynq.TaskID("drain:"+category),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil // already registered, one-shot semantics
	}
	if err != nil {
		return fmt.Errorf("register deferred drain: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (a *Asynq) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Noop is the fallback facility for environments without a broker.
type Noop struct{}

func (Noop) Available() bool { return false }

func (Noop) Register(context.Context, string) error { return ErrUnavailable }
