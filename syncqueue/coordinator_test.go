package syncqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeConn is a scriptable Connectivity.
type fakeConn struct {
	mu     sync.Mutex
	online bool
	subs   []func(bool)
	unsubs int
}

func (c *fakeConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConn) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.unsubs++
	}
}

func (c *fakeConn) setOnline(online bool) {
	c.mu.Lock()
	c.online = online
	subs := append([]func(bool){}, c.subs...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

// fakeDeferred records registrations.
type fakeDeferred struct {
	mu         sync.Mutex
	available  bool
	registered []string
}

func (d *fakeDeferred) Available() bool { return d.available }

func (d *fakeDeferred) Register(ctx context.Context, category string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registered = append(d.registered, category)
	return nil
}

func TestCoordinatorDrainsOnReconnect(t *testing.T) {
	store := &memStore{}
	rem := &memRemote{fail: map[string]error{}}
	q := New(store, rem, nil, zerolog.Nop())
	conn := &fakeConn{}
	coord := NewCoordinator(q, &fakeDeferred{}, conn, zerolog.Nop())
	coord.Start(context.Background())
	defer coord.Close()

	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "routes", []byte(`"first"`)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, "routes", []byte(`"second"`)); err != nil {
		t.Fatal(err)
	}

	conn.setOnline(true)

	deadline := time.After(2 * time.Second)
	for {
		if n, _ := q.PendingCount(ctx); n == 0 {
			break
		}
		select {
		case <-deadline:
			n, _ := q.PendingCount(ctx)
			t.Fatalf("reconnect drain never finished, %d pending", n)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	got := rem.deliveredPayloads()
	if len(got) != 2 || got[0] != `"first"` || got[1] != `"second"` {
		t.Errorf("delivery order = %v, want [first second]", got)
	}
}

func TestCoordinatorOfflineTransitionDoesNotDrain(t *testing.T) {
	store := &memStore{}
	rem := &memRemote{fail: map[string]error{}}
	q := New(store, rem, nil, zerolog.Nop())
	conn := &fakeConn{online: true}
	coord := NewCoordinator(q, &fakeDeferred{}, conn, zerolog.Nop())
	coord.Start(context.Background())
	defer coord.Close()

	if _, err := q.Enqueue(context.Background(), "routes", []byte(`"x"`)); err != nil {
		t.Fatal(err)
	}
	conn.setOnline(false)
	time.Sleep(20 * time.Millisecond)
	if len(rem.deliveredPayloads()) != 0 {
		t.Error("going offline must not trigger a drain")
	}
}

func TestRequestSyncPrefersDeferredFacility(t *testing.T) {
	store := &memStore{}
	rem := &memRemote{fail: map[string]error{}}
	q := New(store, rem, nil, zerolog.Nop())
	conn := &fakeConn{online: true}
	def := &fakeDeferred{available: true}
	coord := NewCoordinator(q, def, conn, zerolog.Nop())

	if _, err := q.Enqueue(context.Background(), "reports", []byte(`"r"`)); err != nil {
		t.Fatal(err)
	}
	if err := coord.RequestSync(context.Background(), "reports"); err != nil {
		t.Fatal(err)
	}
	if len(def.registered) != 1 || def.registered[0] != "reports" {
		t.Errorf("deferred registrations = %v, want [reports]", def.registered)
	}
	if len(rem.deliveredPayloads()) != 0 {
		t.Error("deferred path must not drain immediately")
	}
}

func TestRequestSyncFallsBackToManualDrain(t *testing.T) {
	store := &memStore{}
	rem := &memRemote{fail: map[string]error{}}
	q := New(store, rem, nil, zerolog.Nop())
	conn := &fakeConn{online: true}
	coord := NewCoordinator(q, &fakeDeferred{available: false}, conn, zerolog.Nop())

	if _, err := q.Enqueue(context.Background(), "reports", []byte(`"r"`)); err != nil {
		t.Fatal(err)
	}
	if err := coord.RequestSync(context.Background(), "reports"); err != nil {
		t.Fatal(err)
	}
	if got := rem.deliveredPayloads(); len(got) != 1 {
		t.Errorf("manual fallback delivered %v, want one item", got)
	}
}

func TestRequestSyncWhileOfflineWaitsForReconnect(t *testing.T) {
	store := &memStore{}
	rem := &memRemote{fail: map[string]error{}}
	q := New(store, rem, nil, zerolog.Nop())
	conn := &fakeConn{online: false}
	coord := NewCoordinator(q, &fakeDeferred{available: false}, conn, zerolog.Nop())

	if _, err := q.Enqueue(context.Background(), "reports", []byte(`"r"`)); err != nil {
		t.Fatal(err)
	}
	if err := coord.RequestSync(context.Background(), "reports"); err != nil {
		t.Fatal(err)
	}
	if len(rem.deliveredPayloads()) != 0 {
		t.Error("offline request must not attempt delivery")
	}
	if n, _ := q.PendingCount(context.Background()); n != 1 {
		t.Error("item must stay queued for the next online event")
	}
}

func TestCoordinatorCloseUnsubscribes(t *testing.T) {
	store := &memStore{}
	rem := &memRemote{fail: map[string]error{}}
	q := New(store, rem, nil, zerolog.Nop())
	conn := &fakeConn{}
	coord := NewCoordinator(q, &fakeDeferred{}, conn, zerolog.Nop())
	coord.Start(context.Background())
	coord.Close()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.unsubs != 1 {
		t.Errorf("unsubscribes = %d, want 1", conn.unsubs)
	}
}
