package session

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tabmix/mixer/internal/audio"
	"github.com/tabmix/mixer/internal/audio/simulated"
)

type staticNames map[uint32]string

func (s staticNames) Resolve(_ context.Context, pid uint32) (string, bool) {
	name, ok := s[pid]
	return name, ok
}

func newService(t *testing.T, sys *simulated.System) *QueryService {
	t.Helper()
	return NewQueryService(sys, staticNames{200: "chrome.exe"}, zaptest.NewLogger(t).Sugar())
}

func TestListSkipsSystemSoundsAndBrokenSessions(t *testing.T) {
	sys := simulated.New()
	sys.Add(simulated.Session{PID: 0, InstanceID: "sys", DisplayName: "System Sounds"})
	sys.Add(simulated.Session{PID: 100, InstanceID: "A", DisplayName: "Spotify", Volume: 0.8, State: audio.StateActive})
	sys.Add(simulated.Session{PID: 200, InstanceID: "B", Volume: 0.2, Muted: true})
	sys.Add(simulated.Session{PID: 300, InstanceID: "C", NoVolume: true})
	sys.Add(simulated.Session{PID: 400, InstanceID: "D", EnumerateErr: errors.New("gone")})
	sys.Add(simulated.Session{PID: 500, NoInstanceID: true})

	got, err := newService(t, sys).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []Snapshot{
		{PID: 100, UID: "A", Name: "Spotify", Volume: 0.8, IsActive: true},
		{PID: 200, UID: "B", Name: "chrome.exe", Volume: 0.2, IsMuted: true},
	}
	if len(got) != len(want) {
		t.Fatalf("List returned %d sessions, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("session %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if refs := sys.LiveRefs(); refs != 0 {
		t.Errorf("LiveRefs after List = %d, want 0", refs)
	}
	if open := sys.OpenManagers(); open != 0 {
		t.Errorf("OpenManagers after List = %d, want 0", open)
	}
}

func TestListUnknownName(t *testing.T) {
	sys := simulated.New()
	sys.Add(simulated.Session{PID: 999, InstanceID: "X"})

	got, err := newService(t, sys).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Name != UnknownName {
		t.Errorf("List = %+v, want one session named %q", got, UnknownName)
	}
}

func TestSubsystemFailuresAreQueryErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*simulated.System)
	}{
		{"open", func(s *simulated.System) { s.OpenErr = errors.New("no device") }},
		{"enumerate", func(s *simulated.System) { s.EnumerateErr = errors.New("enum failed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := simulated.New()
			tt.setup(sys)
			q := newService(t, sys)

			_, err := q.List(context.Background())
			var qe *QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("List error = %v, want *QueryError", err)
			}
			if qe.Op != "list" {
				t.Errorf("Op = %q, want list", qe.Op)
			}

			err = q.SetVolume(context.Background(), 1, "x", 0.5)
			if !errors.As(err, &qe) {
				t.Errorf("SetVolume error = %v, want *QueryError", err)
			}
		})
	}
}

func TestSetVolume(t *testing.T) {
	sys := simulated.New()
	x := sys.Add(simulated.Session{PID: 100, InstanceID: "X", Volume: 1})
	q := newService(t, sys)

	if err := q.SetVolume(context.Background(), 100, "X", 0.5); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	s, _ := sys.Lookup(x)
	if s.Volume != 0.5 {
		t.Errorf("volume = %v, want 0.5", s.Volume)
	}

	if err := q.SetVolume(context.Background(), 100, "X", 0.5); err != nil {
		t.Fatalf("second SetVolume: %v", err)
	}
	s, _ = sys.Lookup(x)
	if s.Volume != 0.5 {
		t.Errorf("volume after repeat = %v, want 0.5", s.Volume)
	}
}

func TestSetVolumeRejectsOutOfRange(t *testing.T) {
	sys := simulated.New()
	x := sys.Add(simulated.Session{PID: 100, InstanceID: "X", Volume: 0.3})
	q := newService(t, sys)

	for _, level := range []float32{-0.1, 1.01, float32(math.NaN()), float32(math.Inf(1))} {
		if err := q.SetVolume(context.Background(), 100, "X", level); !errors.Is(err, ErrVolumeRange) {
			t.Errorf("SetVolume(%v) error = %v, want ErrVolumeRange", level, err)
		}
	}
	if n := sys.SetVolumeCalls(x); n != 0 {
		t.Errorf("SetVolumeCalls = %d, want 0", n)
	}
}

func TestNoMatchIsSilent(t *testing.T) {
	sys := simulated.New()
	a := sys.Add(simulated.Session{PID: 100, InstanceID: "A", Volume: 0.4})
	b := sys.Add(simulated.Session{PID: 200, InstanceID: "B", Volume: 0.6, Muted: true})
	sysSounds := sys.Add(simulated.Session{PID: 0, InstanceID: "S", Volume: 0.9})
	q := newService(t, sys)
	ctx := context.Background()

	calls := []struct {
		name string
		fn   func() error
	}{
		{"volume wrong uid", func() error { return q.SetVolume(ctx, 100, "B", 0.1) }},
		{"volume wrong pid", func() error { return q.SetVolume(ctx, 300, "A", 0.1) }},
		{"volume pid zero", func() error { return q.SetVolume(ctx, 0, "S", 0.1) }},
		{"mute unknown", func() error { return q.SetMute(ctx, 100, "Z", true) }},
		{"unmute wrong pid", func() error { return q.SetMute(ctx, 100, "B", false) }},
	}
	for _, c := range calls {
		if err := c.fn(); err != nil {
			t.Errorf("%s: err = %v, want nil", c.name, err)
		}
	}

	for _, tc := range []struct {
		key    string
		volume float32
		muted  bool
	}{{a, 0.4, false}, {b, 0.6, true}, {sysSounds, 0.9, false}} {
		s, _ := sys.Lookup(tc.key)
		if s.Volume != tc.volume || s.Muted != tc.muted {
			t.Errorf("%s = (%v, %v), want (%v, %v)", tc.key, s.Volume, s.Muted, tc.volume, tc.muted)
		}
		if n := sys.SetVolumeCalls(tc.key) + sys.SetMuteCalls(tc.key); n != 0 {
			t.Errorf("%s received %d subsystem calls, want 0", tc.key, n)
		}
	}
}

func TestSetMuteIsIdempotent(t *testing.T) {
	sys := simulated.New()
	x := sys.Add(simulated.Session{PID: 100, InstanceID: "X"})
	q := newService(t, sys)

	for i := 0; i < 2; i++ {
		if err := q.SetMute(context.Background(), 100, "X", true); err != nil {
			t.Fatalf("SetMute #%d: %v", i+1, err)
		}
	}

	if n := sys.SetMuteCalls(x); n != 1 {
		t.Errorf("SetMuteCalls = %d, want 1", n)
	}
	if s, _ := sys.Lookup(x); !s.Muted {
		t.Error("session should be muted")
	}
}

func TestSetOnSessionWithoutVolume(t *testing.T) {
	sys := simulated.New()
	sys.Add(simulated.Session{PID: 100, InstanceID: "X", NoVolume: true})

	err := newService(t, sys).SetMute(context.Background(), 100, "X", true)
	var qe *QueryError
	if !errors.As(err, &qe) || qe.Op != "setMute" {
		t.Errorf("SetMute error = %v, want setMute QueryError", err)
	}
}
