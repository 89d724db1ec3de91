// Package monitor keeps a listener registered on every live audio session
// and republishes what those listeners hear as outbound events.
//
// All registration bookkeeping happens on the goroutine running Run. OS
// callbacks reach it only through the Bridge.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/audio"
	"github.com/tabmix/mixer/internal/event"
	"github.com/tabmix/mixer/internal/session"
)

const defaultPollInterval = 200 * time.Millisecond

// trackedSession is present in Monitor.tracked exactly while reg is live.
type trackedSession struct {
	control audio.SessionControl
	reg     audio.Registration
}

type Monitor struct {
	sys      audio.Subsystem
	names    session.NameResolver
	sink     event.Sink
	log      *zap.SugaredLogger
	interval time.Duration
	bridge   *Bridge

	mgr         audio.SessionManager
	notifierReg audio.Registration

	mu      sync.RWMutex // guards tracked for readers outside the loop
	tracked map[string]*trackedSession
}

// New creates a Monitor. interval is the bridge drain cadence; zero selects
// the default.
func New(sys audio.Subsystem, names session.NameResolver, sink event.Sink, log *zap.SugaredLogger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Monitor{
		sys:      sys,
		names:    names,
		sink:     sink,
		log:      log,
		interval: interval,
		bridge:   NewBridge(),
		tracked:  make(map[string]*trackedSession),
	}
}

// Run monitors sessions until ctx is done, then unregisters every listener
// it holds. It returns an error when the subsystem cannot be opened or the
// bridge fails; both are also published as server-error events.
//
// Run locks its goroutine to one OS thread for its whole lifetime, since
// the subsystem session is bound to the thread that opened it.
func (m *Monitor) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := m.start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.drain(ctx); err != nil {
			m.fail(err)
			m.teardown()
			return err
		}
		select {
		case <-ctx.Done():
			m.teardown()
			return nil
		case <-ticker.C:
		}
	}
}

// Tracked returns the uids of the sessions currently being listened to.
func (m *Monitor) Tracked() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uids := make([]string, 0, len(m.tracked))
	for uid := range m.tracked {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// start opens the subsystem, registers for new sessions and picks up the
// sessions that already exist. Bootstrap emits no events.
func (m *Monitor) start(ctx context.Context) error {
	mgr, err := m.sys.Open()
	if err != nil {
		err = fmt.Errorf("open audio subsystem: %w", err)
		m.fail(err)
		return err
	}
	m.mgr = mgr

	reg, err := mgr.RegisterNotification(&sessionNotifier{bridge: m.bridge, log: m.log})
	if err != nil {
		// Existing sessions can still be watched.
		m.log.Errorw("register session notification", "err", err)
	} else {
		m.notifierReg = reg
	}

	m.bootstrap()
	m.log.Infow("monitoring audio sessions", "tracked", len(m.tracked), "interval", m.interval)
	return nil
}

func (m *Monitor) bootstrap() {
	en, err := m.mgr.Enumerate()
	if err != nil {
		m.log.Errorw("enumerate sessions", "err", err)
		return
	}
	defer en.Release()

	n, err := en.Count()
	if err != nil {
		m.log.Errorw("count sessions", "err", err)
		return
	}
	for i := 0; i < n; i++ {
		c, err := en.Session(i)
		if err != nil {
			m.log.Warnw("get session", "index", i, "err", err)
			continue
		}
		_, uid, err := session.Key(c)
		if err != nil {
			m.log.Warnw("identify session", "index", i, "err", err)
			c.Release()
			continue
		}
		if m.isTracked(uid) {
			c.Release()
			continue
		}
		if _, err := m.track(uid, c, true); err != nil {
			m.log.Warnw("register session listener", "uid", uid, "err", err)
			c.Release()
			continue
		}
		if m.ended(uid, c) {
			m.untrack(uid)
		}
	}
}

// drain applies every queued bridge message in order.
func (m *Monitor) drain(ctx context.Context) error {
	msgs, err := m.bridge.drain()
	for _, msg := range msgs {
		switch msg.kind {
		case msgSessionCreated:
			if err != nil {
				msg.control.Release()
				continue
			}
			m.sessionCreated(ctx, msg.control)
		case msgSessionClosed:
			m.untrack(msg.uid)
		}
	}
	return err
}

func (m *Monitor) sessionCreated(ctx context.Context, c audio.SessionControl) {
	_, uid, err := session.Key(c)
	if err != nil {
		m.log.Warnw("identify new session", "err", err)
		c.Release()
		return
	}
	if m.isTracked(uid) {
		c.Release()
		return
	}

	// Register before describing so no change falls between the two.
	l, err := m.track(uid, c, false)
	if err != nil {
		m.log.Warnw("register session listener", "uid", uid, "err", err)
		c.Release()
		return
	}
	if m.ended(uid, c) {
		m.untrack(uid)
		return
	}
	snap, err := session.Describe(ctx, c, m.names)
	if err != nil {
		m.log.Warnw("describe new session", "uid", uid, "err", err)
		m.untrack(uid)
		return
	}
	m.log.Debugw("session created", "uid", uid, "pid", snap.PID, "name", snap.Name)
	l.announce(snap.Created())
}

// ended reports whether c expired before its listener was in place, in
// which case no callback will ever report it.
func (m *Monitor) ended(uid string, c audio.SessionControl) bool {
	state, err := c.State()
	if err != nil {
		m.log.Warnw("read session state", "uid", uid, "err", err)
		return true
	}
	if state == audio.StateExpired {
		m.log.Debugw("session ended before tracking", "uid", uid)
		return true
	}
	return false
}

// track registers a listener on c and records it. On error nothing is
// recorded and the caller keeps ownership of c. Listeners of bootstrap
// sessions start out announced.
func (m *Monitor) track(uid string, c audio.SessionControl, announced bool) (*sessionListener, error) {
	l := newSessionListener(uid, m.sink, m.bridge, m.log, announced)
	reg, err := c.Register(l)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.tracked[uid] = &trackedSession{control: c, reg: reg}
	m.mu.Unlock()
	return l, nil
}

// untrack unregisters and forgets uid. Unknown uids are ignored, which
// makes removal idempotent.
func (m *Monitor) untrack(uid string) {
	m.mu.Lock()
	t, ok := m.tracked[uid]
	delete(m.tracked, uid)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := t.reg.Unregister(); err != nil {
		m.log.Warnw("unregister session listener", "uid", uid, "err", err)
	}
	t.control.Release()
}

func (m *Monitor) isTracked(uid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tracked[uid]
	return ok
}

// teardown undoes every registration. Each failure is logged and the rest
// still run.
func (m *Monitor) teardown() {
	if m.notifierReg != nil {
		if err := m.notifierReg.Unregister(); err != nil {
			m.log.Warnw("unregister session notification", "err", err)
		}
		m.notifierReg = nil
	}

	for _, uid := range m.Tracked() {
		m.untrack(uid)
	}

	for _, msg := range m.bridge.Close() {
		if msg.kind == msgSessionCreated {
			msg.control.Release()
		}
	}

	if m.mgr != nil {
		if err := m.mgr.Close(); err != nil {
			m.log.Warnw("close session manager", "err", err)
		}
		m.mgr = nil
	}
	m.log.Infow("audio monitor stopped")
}

func (m *Monitor) fail(err error) {
	if errors.Is(err, ErrBridgeClosed) {
		m.log.Errorw("notification bridge failed", "err", err)
	} else {
		m.log.Errorw("audio monitor failed", "err", err)
	}
	m.sink.Emit(event.ServerError{Message: err.Error()})
}
