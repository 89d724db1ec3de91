package session

import (
	"context"
	"errors"
	"testing"

	"github.com/tabmix/mixer/internal/audio"
	"github.com/tabmix/mixer/internal/audio/simulated"
)

func firstControl(t *testing.T, sys *simulated.System) audio.SessionControl {
	t.Helper()
	mgr, err := sys.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	en, err := mgr.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	c, err := en.Session(0)
	if err != nil {
		t.Fatalf("Session(0): %v", err)
	}
	t.Cleanup(c.Release)
	return c
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		session simulated.Session
		want    Snapshot
		wantErr error
	}{
		{
			name:    "display name wins",
			session: simulated.Session{PID: 200, InstanceID: "u", DisplayName: "Discord", Volume: 0.7, State: audio.StateActive},
			want:    Snapshot{PID: 200, UID: "u", Name: "Discord", Volume: 0.7, IsActive: true},
		},
		{
			name:    "resolved process name",
			session: simulated.Session{PID: 200, InstanceID: "u", Muted: true},
			want:    Snapshot{PID: 200, UID: "u", Name: "chrome.exe", IsMuted: true},
		},
		{
			name:    "unknown",
			session: simulated.Session{PID: 7, InstanceID: "u", State: audio.StateInactive},
			want:    Snapshot{PID: 7, UID: "u", Name: UnknownName},
		},
		{
			name:    "empty identifier",
			session: simulated.Session{PID: 7, NoInstanceID: true},
			wantErr: audio.ErrNoIdentifier,
		},
		{
			name:    "no identity",
			session: simulated.Session{PID: 7, NoIdentity: true},
			wantErr: errNoIdentity,
		},
		{
			name:    "no volume",
			session: simulated.Session{PID: 7, NoVolume: true},
			wantErr: errNoVolume,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := simulated.New()
			sys.Add(tt.session)

			got, err := Describe(context.Background(), firstControl(t, sys), staticNames{200: "chrome.exe"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Describe error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Describe: %v", err)
			}
			if got != tt.want {
				t.Errorf("Describe = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDescribeNilResolver(t *testing.T) {
	sys := simulated.New()
	sys.Add(simulated.Session{PID: 200, InstanceID: "u"})

	got, err := Describe(context.Background(), firstControl(t, sys), nil)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got.Name != UnknownName {
		t.Errorf("Name = %q, want %q", got.Name, UnknownName)
	}
}

func TestSnapshotCreatedEvent(t *testing.T) {
	s := Snapshot{PID: 1, UID: "u", Name: "n", Volume: 0.5, IsMuted: true, IsActive: true}
	ev := s.Created()
	if ev.PID != 1 || ev.UID != "u" || ev.Name != "n" || ev.Volume != 0.5 || !ev.IsMuted || !ev.IsActive {
		t.Errorf("Created() = %+v", ev)
	}
}
