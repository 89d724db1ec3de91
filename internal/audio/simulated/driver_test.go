package simulated

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestDriverSeed(t *testing.T) {
	sys := New()
	d := NewDriver(sys, time.Hour, 4)
	d.Seed()

	// system sounds plus half the apps
	if got := len(sys.Keys()); got != 3 {
		t.Errorf("Keys after Seed = %d, want 3", got)
	}
}

func TestDriverRespectsMaxSessions(t *testing.T) {
	sys := New()
	d := NewDriver(sys, time.Hour, 3)
	d.rng = rand.New(rand.NewSource(1))
	d.Seed()

	for i := 0; i < 500; i++ {
		d.Step()
		d.mu.Lock()
		n := len(d.live)
		d.mu.Unlock()
		if n > 3 {
			t.Fatalf("step %d: %d live sessions, want at most 3", i, n)
		}
	}
}

func TestDriverStopsWithContext(t *testing.T) {
	sys := New()
	d := NewDriver(sys, time.Millisecond, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Seed()
		d.run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancel")
	}
}
