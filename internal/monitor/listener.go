package monitor

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/audio"
	"github.com/tabmix/mixer/internal/event"
)

// sessionListener receives callbacks for one tracked session. It may be
// invoked from any OS thread, so it only emits events and hands lifecycle
// changes to the bridge; the tracked map is never touched here.
//
// Nothing is emitted for a session until it has been announced. A close
// that arrives earlier is held and published right after the announcement.
type sessionListener struct {
	uid    string
	sink   event.Sink
	bridge *Bridge
	log    *zap.SugaredLogger
	closed atomic.Bool

	mu        sync.Mutex
	announced bool
	pending   bool // closed before announce
}

func newSessionListener(uid string, sink event.Sink, bridge *Bridge, log *zap.SugaredLogger, announced bool) *sessionListener {
	return &sessionListener{uid: uid, sink: sink, bridge: bridge, log: log, announced: announced}
}

func (l *sessionListener) OnSimpleVolumeChanged(level float32, muted bool) {
	l.emit(event.VolumeChanged{UID: l.uid, NewVolume: level, IsMuted: muted})
}

func (l *sessionListener) OnStateChanged(state audio.SessionState) {
	switch state {
	case audio.StateActive, audio.StateInactive:
		l.emit(event.StateChanged{UID: l.uid, IsActive: state == audio.StateActive})
	case audio.StateExpired:
		l.close("expired")
	}
}

func (l *sessionListener) OnSessionDisconnected(reason audio.DisconnectReason) {
	l.close(reason.String())
}

// announce publishes created, followed by the session's close if it ended
// in the meantime.
func (l *sessionListener) announce(created event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.announced = true
	l.sink.Emit(created)
	if l.pending {
		l.sink.Emit(event.SessionClosed{UID: l.uid})
	}
}

// emit drops ev until the session has been announced; the announcement
// snapshot is taken after registration and already covers it.
func (l *sessionListener) emit(ev event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.announced {
		l.sink.Emit(ev)
	}
}

// close publishes the session's end once, even if the OS reports both an
// expiry and a disconnect.
func (l *sessionListener) close(why string) {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	l.log.Debugw("session closed", "uid", l.uid, "reason", why)
	l.mu.Lock()
	if l.announced {
		l.sink.Emit(event.SessionClosed{UID: l.uid})
	} else {
		l.pending = true
	}
	l.mu.Unlock()
	if err := l.bridge.SessionClosed(l.uid); err != nil {
		l.log.Warnw("forward session close", "uid", l.uid, "err", err)
	}
}

// sessionNotifier is the process-wide new-session callback.
type sessionNotifier struct {
	bridge *Bridge
	log    *zap.SugaredLogger
}

func (n *sessionNotifier) OnSessionCreated(c audio.SessionControl) {
	if err := n.bridge.SessionCreated(c); err != nil {
		n.log.Warnw("forward new session", "err", err)
		c.Release()
	}
}
