package monitor

import (
	"errors"
	"sync"

	"github.com/tabmix/mixer/internal/audio"
)

// ErrBridgeClosed is returned by Bridge.Send after Close, and makes the
// monitor loop shut down when it finds the bridge closed while draining.
var ErrBridgeClosed = errors.New("monitor: notification bridge closed")

// messageKind tags a bridge message.
type messageKind int

const (
	msgSessionCreated messageKind = iota
	msgSessionClosed
)

// message is either a new session handle or the uid of a closed session.
type message struct {
	kind    messageKind
	control audio.SessionControl // msgSessionCreated; owned by the receiver
	uid     string               // msgSessionClosed
}

// Bridge carries lifecycle notifications from OS callback threads to the
// monitor loop. Any number of goroutines may Send; only the loop drains.
// Send never blocks, so a callback thread is never held up by the loop.
type Bridge struct {
	mu      sync.Mutex
	pending []message
	closed  bool
}

// NewBridge returns an open Bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// SessionCreated queues a new session handle. On error the caller still
// owns c and must release it.
func (b *Bridge) SessionCreated(c audio.SessionControl) error {
	return b.send(message{kind: msgSessionCreated, control: c})
}

// SessionClosed queues the removal of uid.
func (b *Bridge) SessionClosed(uid string) error {
	return b.send(message{kind: msgSessionClosed, uid: uid})
}

func (b *Bridge) send(m message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBridgeClosed
	}
	b.pending = append(b.pending, m)
	return nil
}

// drain swaps out everything queued so far, in send order.
func (b *Bridge) drain() ([]message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.pending
	b.pending = nil
	if b.closed {
		return msgs, ErrBridgeClosed
	}
	return msgs, nil
}

// Close rejects further sends and returns whatever is still queued.
// Closing twice is harmless.
func (b *Bridge) Close() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	msgs := b.pending
	b.pending = nil
	return msgs
}
