package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSetOnlineNotifiesOnTransitions(t *testing.T) {
	s := New("http://example.invalid/healthz", time.Minute, zerolog.Nop())

	var mu sync.Mutex
	var events []bool
	unsub := s.Subscribe(func(online bool) {
		mu.Lock()
		events = append(events, online)
		mu.Unlock()
	})
	defer unsub()

	s.SetOnline(true)
	s.SetOnline(true) // no transition, no event
	s.SetOnline(false)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != true || events[1] != false {
		t.Errorf("events = %v, want [true false]", events)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := New("http://example.invalid/healthz", time.Minute, zerolog.Nop())

	calls := 0
	unsub := s.Subscribe(func(bool) { calls++ })
	s.SetOnline(true)
	unsub()
	s.SetOnline(false)

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no events after unsubscribe)", calls)
	}
}

func TestOnlineReflectsState(t *testing.T) {
	s := New("http://example.invalid/healthz", time.Minute, zerolog.Nop())
	if s.Online() {
		t.Error("signal must start offline")
	}
	s.SetOnline(true)
	if !s.Online() {
		t.Error("Online() should report true after SetOnline(true)")
	}
}

func TestProbeLoopDrivesState(t *testing.T) {
	up := make(chan bool, 8)
	up <- true
	s := New("", 5*time.Millisecond, zerolog.Nop(), WithProbe(func(ctx context.Context) bool {
		select {
		case v := <-up:
			return v
		default:
			return true
		}
	}))

	transition := make(chan bool, 8)
	unsub := s.Subscribe(func(online bool) { transition <- online })
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	select {
	case online := <-transition:
		if !online {
			t.Errorf("first transition = %v, want online", online)
		}
	case <-time.After(time.Second):
		t.Fatal("probe loop never reported online")
	}
}
