package simulated

import (
	"testing"

	"github.com/tabmix/mixer/internal/audio"
)

type recordingEvents struct {
	volumes []float32
	states  []audio.SessionState
	reasons []audio.DisconnectReason
}

func (r *recordingEvents) OnSimpleVolumeChanged(v float32, _ bool) { r.volumes = append(r.volumes, v) }
func (r *recordingEvents) OnStateChanged(s audio.SessionState)     { r.states = append(r.states, s) }
func (r *recordingEvents) OnSessionDisconnected(d audio.DisconnectReason) {
	r.reasons = append(r.reasons, d)
}

type recordingNotifier struct{ created []audio.SessionControl }

func (r *recordingNotifier) OnSessionCreated(c audio.SessionControl) {
	r.created = append(r.created, c)
}

func openFirst(t *testing.T, sys *System) (audio.SessionManager, audio.SessionControl) {
	t.Helper()
	mgr, err := sys.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	en, err := mgr.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	c, err := en.Session(0)
	if err != nil {
		t.Fatalf("Session(0): %v", err)
	}
	return mgr, c
}

func TestListenerCallbacks(t *testing.T) {
	sys := New()
	key := sys.Add(Session{PID: 1, Volume: 0.5})
	_, c := openFirst(t, sys)

	var ev recordingEvents
	reg, err := c.Register(&ev)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	sys.ChangeVolume(key, 0.25, false)
	sys.SetState(key, audio.StateActive)
	sys.Disconnect(key, audio.DisconnectDeviceRemoval)

	if len(ev.volumes) != 1 || ev.volumes[0] != 0.25 {
		t.Errorf("volumes = %v, want [0.25]", ev.volumes)
	}
	if len(ev.states) != 1 || ev.states[0] != audio.StateActive {
		t.Errorf("states = %v, want [active]", ev.states)
	}
	if len(ev.reasons) != 1 {
		t.Errorf("reasons = %v, want one", ev.reasons)
	}
	if got := sys.Keys(); len(got) != 0 {
		t.Errorf("Keys after disconnect = %v, want none", got)
	}

	if err := reg.Unregister(); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := reg.Unregister(); err == nil {
		t.Error("second Unregister should fail")
	}
	if n := sys.Registrations(key); n != 0 {
		t.Errorf("Registrations = %d, want 0", n)
	}
}

func TestNotifierReceivesNewSessions(t *testing.T) {
	sys := New()
	mgr, err := sys.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var n recordingNotifier
	reg, err := mgr.RegisterNotification(&n)
	if err != nil {
		t.Fatalf("RegisterNotification: %v", err)
	}

	key := sys.Add(Session{PID: 3, InstanceID: "abc"})
	sys.Announce(key)

	if len(n.created) != 2 {
		t.Fatalf("created = %d, want 2", len(n.created))
	}
	if refs := sys.LiveRefs(); refs != 2 {
		t.Errorf("LiveRefs = %d, want 2", refs)
	}
	for _, c := range n.created {
		c.Release()
		c.Release()
	}
	if refs := sys.LiveRefs(); refs != 0 {
		t.Errorf("LiveRefs after release = %d, want 0", refs)
	}

	reg.Unregister()
	sys.Add(Session{PID: 4})
	if len(n.created) != 2 {
		t.Errorf("notifier called after Unregister")
	}
	if err := mgr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if open := sys.OpenManagers(); open != 0 {
		t.Errorf("OpenManagers = %d, want 0", open)
	}
}

func TestSetVolumeThroughControl(t *testing.T) {
	sys := New()
	key := sys.Add(Session{PID: 1})
	_, c := openFirst(t, sys)

	vol, ok := c.Volume()
	if !ok {
		t.Fatal("Volume capability missing")
	}
	if err := vol.SetMasterVolume(1.5); err == nil {
		t.Error("SetMasterVolume(1.5) should fail")
	}
	if err := vol.SetMasterVolume(0.3); err != nil {
		t.Fatalf("SetMasterVolume: %v", err)
	}
	if s, _ := sys.Lookup(key); s.Volume != 0.3 {
		t.Errorf("volume = %v, want 0.3", s.Volume)
	}
	if n := sys.SetVolumeCalls(key); n != 1 {
		t.Errorf("SetVolumeCalls = %d, want 1", n)
	}
}
