package syncqueue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Deferred is a platform facility that runs a one-shot drain once
// connectivity returns, even if this process is gone by then.
type Deferred interface {
	Available() bool
	Register(ctx context.Context, category string) error
}

// Connectivity exposes the online/offline signal the coordinator reacts
// to. Subscribe returns an unsubscribe func; the coordinator owns its
// subscription and removes it on Close.
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Coordinator decides how pending items get another delivery chance:
// through the deferred facility when available, otherwise by draining
// manually on the next online transition. There is no internal timer
// loop; triggers are connectivity events, explicit RequestSync calls, and
// opportunistic enqueue-time drains.
type Coordinator struct {
	queue    *Queue
	deferred Deferred
	conn     Connectivity
	log      zerolog.Logger

	mu    sync.Mutex
	unsub func()
	wg    sync.WaitGroup
}

// NewCoordinator wires the queue to its triggers. Call Start to begin
// listening and Close on teardown.
func NewCoordinator(queue *Queue, deferred Deferred, conn Connectivity, log zerolog.Logger) *Coordinator {
	return &Coordinator{queue: queue, deferred: deferred, conn: conn, log: log}
}

// Start subscribes to connectivity transitions. An offline→online
// transition drains all categories.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		return
	}
	c.unsub = c.conn.Subscribe(func(online bool) {
		if !online {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			res, err := c.queue.DrainAll(ctx)
			if err != nil {
				c.log.Error().Err(err).Msg("drain on reconnect failed")
				return
			}
			if res.Delivered > 0 || res.Remaining > 0 {
				c.log.Info().Int("delivered", res.Delivered).Int("remaining", res.Remaining).
					Msg("drained pending sync items on reconnect")
			}
		}()
	})
}

// RequestSync asks for a delivery attempt for the category. The deferred
// facility is preferred because its registration survives process exit;
// without it, an immediate manual drain runs when online, and an offline
// device simply waits for the next online event.
func (c *Coordinator) RequestSync(ctx context.Context, category string) error {
	if c.deferred != nil && c.deferred.Available() {
		if err := c.deferred.Register(ctx, category); err == nil {
			c.log.Debug().Str("category", category).Msg("deferred sync registered")
			return nil
		} else {
			c.log.Warn().Str("category", category).Err(err).Msg("deferred sync registration failed, draining manually")
		}
	}
	if c.conn != nil && !c.conn.Online() {
		c.log.Debug().Str("category", category).Msg("offline, sync waits for reconnect")
		return nil
	}
	_, err := c.queue.Drain(ctx, category)
	return err
}

// Close removes the connectivity subscription and waits for any in-flight
// reconnect drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}
