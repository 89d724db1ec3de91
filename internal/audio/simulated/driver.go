package simulated

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/tabmix/mixer/internal/audio"
)

type mockApp struct {
	name    string
	pid     uint32
	volume  float32
	pattern string
}

var mockApps = []mockApp{
	{name: "Spotify", pid: 4120, volume: 0.8, pattern: "steady"},
	{name: "", pid: 7344, volume: 1.0, pattern: "bursty"}, // resolved by process name
	{name: "Discord", pid: 5208, volume: 0.6, pattern: "chatty"},
	{name: "VLC media player", pid: 9912, volume: 0.45, pattern: "steady"},
	{name: "Microsoft Teams", pid: 6630, volume: 0.7, pattern: "chatty"},
	{name: "Steam", pid: 3016, volume: 0.35, pattern: "bursty"},
	{name: "OBS Studio", pid: 8452, volume: 0.5, pattern: "steady"},
}

// Driver churns sessions on a System so the rest of the daemon has
// something to watch in mock mode. Changes are made from the driver's own
// goroutine, which plays the part of the OS callback thread.
type Driver struct {
	sys         *System
	tick        time.Duration
	maxSessions int

	mu      sync.Mutex
	rng     *rand.Rand
	live    map[string]mockApp
	nextApp int
}

// NewDriver returns a Driver that acts every tick and keeps at most
// maxSessions sessions alive.
func NewDriver(sys *System, tick time.Duration, maxSessions int) *Driver {
	if maxSessions <= 0 {
		maxSessions = len(mockApps)
	}
	return &Driver{
		sys:         sys,
		tick:        tick,
		maxSessions: maxSessions,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		live:        make(map[string]mockApp),
	}
}

// Start seeds the initial sessions synchronously and then churns until ctx
// is done.
func (d *Driver) Start(ctx context.Context) {
	d.Seed()
	go d.run(ctx)
}

// Seed adds the system sounds session and half of maxSessions apps.
func (d *Driver) Seed() {
	d.sys.Add(Session{PID: 0, DisplayName: "System Sounds", Volume: 1, State: audio.StateInactive})
	for i := 0; i < (d.maxSessions+1)/2; i++ {
		d.spawn()
	}
}

func (d *Driver) run(ctx context.Context) {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Step()
		}
	}
}

// Step performs one random change.
func (d *Driver) Step() {
	d.mu.Lock()
	roll := d.rng.Intn(100)
	n := len(d.live)
	d.mu.Unlock()

	switch {
	case n < d.maxSessions && (n == 0 || roll < 15):
		d.spawn()
	case roll < 22:
		d.end(audio.StateExpired)
	case roll < 27:
		d.end(-1)
	case roll < 55:
		d.toggleState()
	default:
		d.relevel()
	}
}

func (d *Driver) spawn() {
	d.mu.Lock()
	app := mockApps[d.nextApp%len(mockApps)]
	app.pid += uint32(d.nextApp / len(mockApps))
	d.nextApp++
	d.mu.Unlock()

	key := d.sys.Add(Session{
		PID:         app.pid,
		DisplayName: app.name,
		Volume:      app.volume,
		State:       audio.StateActive,
	})

	d.mu.Lock()
	d.live[key] = app
	d.mu.Unlock()
}

// end expires the chosen session, or disconnects it when state is negative.
func (d *Driver) end(state audio.SessionState) {
	key, ok := d.pick()
	if !ok {
		return
	}
	d.mu.Lock()
	delete(d.live, key)
	d.mu.Unlock()

	if state == audio.StateExpired {
		d.sys.SetState(key, audio.StateExpired)
		return
	}
	d.sys.Disconnect(key, audio.DisconnectSessionLogoff)
}

func (d *Driver) toggleState() {
	key, ok := d.pick()
	if !ok {
		return
	}
	s, ok := d.sys.Lookup(key)
	if !ok {
		return
	}
	next := audio.StateActive
	if s.State == audio.StateActive {
		next = audio.StateInactive
	}
	d.sys.SetState(key, next)
}

func (d *Driver) relevel() {
	key, ok := d.pick()
	if !ok {
		return
	}
	s, ok := d.sys.Lookup(key)
	if !ok {
		return
	}

	d.mu.Lock()
	app := d.live[key]
	delta := float32(d.rng.Float64()*0.2 - 0.1)
	switch app.pattern {
	case "bursty":
		delta *= 3
	case "chatty":
		if d.rng.Intn(6) == 0 {
			s.Muted = !s.Muted
		}
	}
	d.mu.Unlock()

	level := s.Volume + delta
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	d.sys.ChangeVolume(key, level, s.Muted)
}

func (d *Driver) pick() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.live) == 0 {
		return "", false
	}
	i := d.rng.Intn(len(d.live))
	for key := range d.live {
		if i == 0 {
			return key, true
		}
		i--
	}
	return "", false
}
