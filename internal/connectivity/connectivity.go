// Package connectivity watches whether the hosted store is reachable and
// notifies subscribers on transitions. Subscriptions are explicit and
// removable; nothing here installs ambient global listeners.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signal tracks online/offline state. It starts offline until the first
// probe (or SetOnline call) says otherwise.
type Signal struct {
	probe    func(ctx context.Context) bool
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	cancel context.CancelFunc
	done   chan struct{}
}

// Option adjusts a Signal.
type Option func(*Signal)

// WithProbe replaces the reachability probe. Tests use this to script
// transitions.
func WithProbe(probe func(ctx context.Context) bool) Option {
	return func(s *Signal) { s.probe = probe }
}

// New creates a Signal that probes probeURL every interval once started.
func New(probeURL string, interval time.Duration, log zerolog.Logger, opts ...Option) *Signal {
	s := &Signal{
		probe:    httpProbe(probeURL),
		interval: interval,
		log:      log,
		subs:     make(map[int]func(bool)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func httpProbe(url string) func(ctx context.Context) bool {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}
}

// Start launches the probe loop. Stop ends it.
func (s *Signal) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.SetOnline(s.probe(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SetOnline(s.probe(ctx))
			}
		}
	}()
}

// Stop ends the probe loop and waits for it to exit.
func (s *Signal) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Online reports the current state.
func (s *Signal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline records the state and, on a transition, notifies subscribers.
// Also the hook for environments that receive platform connectivity
// events directly.
func (s *Signal) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	s.log.Info().Bool("online", online).Msg("connectivity changed")
	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe registers fn for transition notifications and returns the
// unsubscribe func. Callers must unsubscribe on teardown.
func (s *Signal) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
