package monitor

import (
	"errors"
	"sync"
	"testing"
)

func TestBridgePreservesSendOrder(t *testing.T) {
	b := NewBridge()
	for _, uid := range []string{"a", "b", "c"} {
		if err := b.SessionClosed(uid); err != nil {
			t.Fatalf("SessionClosed(%s): %v", uid, err)
		}
	}

	msgs, err := b.drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	var got []string
	for _, m := range msgs {
		got = append(got, m.uid)
	}
	if !equalStrings(got, []string{"a", "b", "c"}) {
		t.Errorf("drained %v, want [a b c]", got)
	}
	if msgs, _ := b.drain(); len(msgs) != 0 {
		t.Errorf("second drain returned %d messages", len(msgs))
	}
}

func TestBridgeConcurrentSenders(t *testing.T) {
	b := NewBridge()
	const senders, each = 8, 100

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				b.SessionClosed("x")
			}
		}()
	}
	wg.Wait()

	msgs, _ := b.drain()
	if len(msgs) != senders*each {
		t.Errorf("drained %d messages, want %d", len(msgs), senders*each)
	}
}

func TestBridgeClose(t *testing.T) {
	b := NewBridge()
	b.SessionClosed("pending")

	left := b.Close()
	if len(left) != 1 {
		t.Errorf("Close returned %d pending messages, want 1", len(left))
	}
	if err := b.SessionClosed("late"); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("send after Close = %v, want ErrBridgeClosed", err)
	}
	if _, err := b.drain(); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("drain after Close = %v, want ErrBridgeClosed", err)
	}
	b.Close()
}
