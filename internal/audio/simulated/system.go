// Package simulated is an in-memory audio session subsystem. It backs the
// daemon's --mock mode and stands in for the operating system in tests:
// sessions are added, changed and removed from the outside, and the
// resulting notifications are delivered synchronously on the goroutine that
// caused them, the way the OS calls back on threads it owns.
package simulated

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tabmix/mixer/internal/audio"
)

var (
	errReleased      = errors.New("simulated: handle already released")
	errNotRegistered = errors.New("simulated: registration already undone")
	errClosed        = errors.New("simulated: session manager closed")
	errVolumeRange   = errors.New("simulated: volume out of range")
	errUnknown       = errors.New("simulated: unknown session")
)

// Session describes a simulated session. Zero values are usable; the
// failure fields let tests model sessions the OS reports but cannot serve.
type Session struct {
	PID         uint32
	InstanceID  string // generated when empty
	DisplayName string
	Volume      float32
	Muted       bool
	State       audio.SessionState

	NoVolume     bool  // Volume capability lookup fails
	NoIdentity   bool  // Identity capability lookup fails
	NoInstanceID bool  // InstanceID reports an empty identifier
	StateErr     error // State() fails
	RegisterErr  error // listener registration fails
	EnumerateErr error // enumerator fails to hand out this session
}

type simSession struct {
	Session
	key       string
	listeners map[int]audio.SessionEvents
	gone      bool

	setVolumeCalls int
	setMuteCalls   int
}

// System implements audio.Subsystem in memory. The exported error fields
// inject subsystem-level failures and may be set before use.
type System struct {
	OpenErr      error
	EnumerateErr error
	NotifyErr    error

	mu         sync.Mutex
	sessions   []*simSession
	byKey      map[string]*simSession
	notifiers  map[int]audio.SessionNotification
	nextID     int
	liveRefs   int
	openCount  int
	closeCount int
}

// New returns an empty System.
func New() *System {
	return &System{
		byKey:     make(map[string]*simSession),
		notifiers: make(map[int]audio.SessionNotification),
	}
}

// Open implements audio.Subsystem.
func (s *System) Open() (audio.SessionManager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.openCount++
	return &manager{sys: s}, nil
}

// Add inserts a session and notifies every registered notifier. It returns
// the key the other System methods accept, which equals the instance id.
func (s *System) Add(spec Session) string {
	if spec.InstanceID == "" {
		spec.InstanceID = fmt.Sprintf("{0.0.0.00000000}.{%s}|%d", uuid.NewString(), spec.PID)
	}
	ss := &simSession{
		Session:   spec,
		key:       spec.InstanceID,
		listeners: make(map[int]audio.SessionEvents),
	}

	s.mu.Lock()
	if old, ok := s.byKey[ss.key]; ok {
		old.gone = true
		s.removeLocked(old)
	}
	s.sessions = append(s.sessions, ss)
	s.byKey[ss.key] = ss
	s.mu.Unlock()

	s.announce(ss)
	return ss.key
}

// Announce re-delivers the creation notification for an existing session,
// as the OS occasionally does.
func (s *System) Announce(key string) error {
	s.mu.Lock()
	ss, ok := s.byKey[key]
	s.mu.Unlock()
	if !ok {
		return errUnknown
	}
	s.announce(ss)
	return nil
}

func (s *System) announce(ss *simSession) {
	s.mu.Lock()
	notifiers := make([]audio.SessionNotification, 0, len(s.notifiers))
	for _, n := range s.notifiers {
		notifiers = append(notifiers, n)
	}
	controls := make([]*control, len(notifiers))
	for i := range notifiers {
		controls[i] = s.newControlLocked(ss)
	}
	s.mu.Unlock()

	for i, n := range notifiers {
		n.OnSessionCreated(controls[i])
	}
}

// SetState moves a session to a new state and notifies its listeners.
// StateExpired also removes it from future enumerations.
func (s *System) SetState(key string, state audio.SessionState) error {
	s.mu.Lock()
	ss, ok := s.byKey[key]
	if !ok {
		s.mu.Unlock()
		return errUnknown
	}
	ss.State = state
	if state == audio.StateExpired {
		ss.gone = true
		s.removeLocked(ss)
	}
	listeners := ss.listenerSnapshot()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnStateChanged(state)
	}
	return nil
}

// Disconnect removes a session and delivers a disconnect notification.
// Handles to it report StateExpired from then on.
func (s *System) Disconnect(key string, reason audio.DisconnectReason) error {
	s.mu.Lock()
	ss, ok := s.byKey[key]
	if !ok {
		s.mu.Unlock()
		return errUnknown
	}
	ss.gone = true
	s.removeLocked(ss)
	listeners := ss.listenerSnapshot()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnSessionDisconnected(reason)
	}
	return nil
}

// ChangeVolume applies a volume change made by another program.
func (s *System) ChangeVolume(key string, level float32, muted bool) error {
	s.mu.Lock()
	ss, ok := s.byKey[key]
	if !ok {
		s.mu.Unlock()
		return errUnknown
	}
	ss.Volume = level
	ss.Muted = muted
	listeners := ss.listenerSnapshot()
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnSimpleVolumeChanged(level, muted)
	}
	return nil
}

// Lookup returns the current description of a session.
func (s *System) Lookup(key string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.byKey[key]
	if !ok {
		return Session{}, false
	}
	return ss.Session, true
}

// Keys lists the sessions that would currently be enumerated.
func (s *System) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for _, ss := range s.sessions {
		keys = append(keys, ss.key)
	}
	return keys
}

// Registrations reports how many listeners are registered on a session,
// including sessions that have already gone away.
func (s *System) Registrations(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.byKey[key]; ok {
		return len(ss.listeners)
	}
	return 0
}

// TotalRegistrations counts registered session listeners across all
// sessions the System has ever seen.
func (s *System) TotalRegistrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ss := range s.byKey {
		n += len(ss.listeners)
	}
	return n
}

// Notifiers reports how many global notifiers are registered.
func (s *System) Notifiers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifiers)
}

// SetVolumeCalls reports how many times SetMasterVolume reached a session.
func (s *System) SetVolumeCalls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.byKey[key]; ok {
		return ss.setVolumeCalls
	}
	return 0
}

// SetMuteCalls reports how many times SetMute reached a session.
func (s *System) SetMuteCalls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.byKey[key]; ok {
		return ss.setMuteCalls
	}
	return 0
}

// LiveRefs reports how many session handles have been handed out and not
// released.
func (s *System) LiveRefs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveRefs
}

// OpenManagers reports how many managers are open.
func (s *System) OpenManagers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount - s.closeCount
}

// removeLocked drops ss from the enumeration order. It stays in byKey so
// late registrations and counters can still be inspected.
func (s *System) removeLocked(ss *simSession) {
	for i, cur := range s.sessions {
		if cur == ss {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			return
		}
	}
}

func (s *System) newControlLocked(ss *simSession) *control {
	s.liveRefs++
	return &control{sys: s, s: ss}
}

func (ss *simSession) listenerSnapshot() []audio.SessionEvents {
	out := make([]audio.SessionEvents, 0, len(ss.listeners))
	for _, l := range ss.listeners {
		out = append(out, l)
	}
	return out
}

type manager struct {
	sys    *System
	closed bool
}

func (m *manager) Enumerate() (audio.SessionEnumerator, error) {
	m.sys.mu.Lock()
	defer m.sys.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	if m.sys.EnumerateErr != nil {
		return nil, m.sys.EnumerateErr
	}
	snap := make([]*simSession, len(m.sys.sessions))
	copy(snap, m.sys.sessions)
	return &enumerator{sys: m.sys, sessions: snap}, nil
}

func (m *manager) RegisterNotification(n audio.SessionNotification) (audio.Registration, error) {
	m.sys.mu.Lock()
	defer m.sys.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	if m.sys.NotifyErr != nil {
		return nil, m.sys.NotifyErr
	}
	id := m.sys.nextID
	m.sys.nextID++
	m.sys.notifiers[id] = n
	return &registration{undo: func() bool {
		if _, ok := m.sys.notifiers[id]; !ok {
			return false
		}
		delete(m.sys.notifiers, id)
		return true
	}, mu: &m.sys.mu}, nil
}

func (m *manager) Close() error {
	m.sys.mu.Lock()
	defer m.sys.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.closed = true
	m.sys.closeCount++
	return nil
}

type enumerator struct {
	sys      *System
	sessions []*simSession
}

func (e *enumerator) Count() (int, error) { return len(e.sessions), nil }

func (e *enumerator) Session(i int) (audio.SessionControl, error) {
	if i < 0 || i >= len(e.sessions) {
		return nil, fmt.Errorf("simulated: session index %d out of range", i)
	}
	e.sys.mu.Lock()
	defer e.sys.mu.Unlock()
	ss := e.sessions[i]
	if ss.EnumerateErr != nil {
		return nil, ss.EnumerateErr
	}
	return e.sys.newControlLocked(ss), nil
}

func (e *enumerator) Release() {}

type control struct {
	sys      *System
	s        *simSession
	released bool
}

func (c *control) State() (audio.SessionState, error) {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if c.released {
		return 0, errReleased
	}
	if c.s.StateErr != nil {
		return 0, c.s.StateErr
	}
	if c.s.gone {
		return audio.StateExpired, nil
	}
	return c.s.State, nil
}

func (c *control) Register(events audio.SessionEvents) (audio.Registration, error) {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if c.released {
		return nil, errReleased
	}
	if c.s.RegisterErr != nil {
		return nil, c.s.RegisterErr
	}
	id := c.sys.nextID
	c.sys.nextID++
	ss := c.s
	ss.listeners[id] = events
	return &registration{undo: func() bool {
		if _, ok := ss.listeners[id]; !ok {
			return false
		}
		delete(ss.listeners, id)
		return true
	}, mu: &c.sys.mu}, nil
}

func (c *control) Volume() (audio.SimpleVolume, bool) {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if c.released || c.s.NoVolume {
		return nil, false
	}
	return &volume{c: c}, true
}

func (c *control) Identity() (audio.SessionIdentity, bool) {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if c.released || c.s.NoIdentity {
		return nil, false
	}
	return &identity{c: c}, true
}

func (c *control) Release() {
	c.sys.mu.Lock()
	defer c.sys.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.sys.liveRefs--
}

type registration struct {
	mu   *sync.Mutex
	undo func() bool
}

func (r *registration) Unregister() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.undo() {
		return errNotRegistered
	}
	return nil
}

type volume struct{ c *control }

func (v *volume) MasterVolume() (float32, error) {
	v.c.sys.mu.Lock()
	defer v.c.sys.mu.Unlock()
	return v.c.s.Volume, nil
}

func (v *volume) SetMasterVolume(level float32) error {
	if level < 0 || level > 1 {
		return errVolumeRange
	}
	v.c.sys.mu.Lock()
	ss := v.c.s
	ss.setVolumeCalls++
	ss.Volume = level
	muted := ss.Muted
	listeners := ss.listenerSnapshot()
	v.c.sys.mu.Unlock()

	for _, l := range listeners {
		l.OnSimpleVolumeChanged(level, muted)
	}
	return nil
}

func (v *volume) Mute() (bool, error) {
	v.c.sys.mu.Lock()
	defer v.c.sys.mu.Unlock()
	return v.c.s.Muted, nil
}

func (v *volume) SetMute(mute bool) error {
	v.c.sys.mu.Lock()
	ss := v.c.s
	ss.setMuteCalls++
	ss.Muted = mute
	level := ss.Volume
	listeners := ss.listenerSnapshot()
	v.c.sys.mu.Unlock()

	for _, l := range listeners {
		l.OnSimpleVolumeChanged(level, mute)
	}
	return nil
}

type identity struct{ c *control }

func (i *identity) ProcessID() (uint32, error) {
	i.c.sys.mu.Lock()
	defer i.c.sys.mu.Unlock()
	return i.c.s.PID, nil
}

func (i *identity) InstanceID() (string, error) {
	i.c.sys.mu.Lock()
	defer i.c.sys.mu.Unlock()
	if i.c.s.NoInstanceID {
		return "", nil
	}
	return i.c.s.InstanceID, nil
}

func (i *identity) DisplayName() (string, error) {
	i.c.sys.mu.Lock()
	defer i.c.sys.mu.Unlock()
	return i.c.s.DisplayName, nil
}
