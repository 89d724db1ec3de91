// Package session reads and mutates the audio sessions currently known to
// the OS. Everything here is query-scoped: snapshots are rebuilt on every
// call and never patched in place.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabmix/mixer/internal/audio"
	"github.com/tabmix/mixer/internal/event"
)

// UnknownName is reported for sessions with neither a display name nor a
// resolvable process.
const UnknownName = "unknown"

var (
	errNoVolume   = errors.New("session does not expose volume control")
	errNoIdentity = errors.New("session does not expose identity")
)

// NameResolver maps a process id to an executable name.
type NameResolver interface {
	Resolve(ctx context.Context, pid uint32) (string, bool)
}

// Snapshot describes one session at the moment it was read.
type Snapshot struct {
	PID      uint32  `json:"pid"`
	UID      string  `json:"uid"`
	Name     string  `json:"name"`
	Volume   float32 `json:"volume"`
	IsMuted  bool    `json:"is_muted"`
	IsActive bool    `json:"is_active"`
}

// Created converts the snapshot into its outbound event.
func (s Snapshot) Created() event.SessionCreated {
	return event.SessionCreated{
		PID:      s.PID,
		UID:      s.UID,
		Name:     s.Name,
		Volume:   s.Volume,
		IsMuted:  s.IsMuted,
		IsActive: s.IsActive,
	}
}

// Describe reads a snapshot from a session handle. A missing capability,
// a failed read or an empty instance identifier is an error; an unreadable
// process id is reported as 0. names may be nil.
func Describe(ctx context.Context, c audio.SessionControl, names NameResolver) (Snapshot, error) {
	id, ok := c.Identity()
	if !ok {
		return Snapshot{}, errNoIdentity
	}
	vol, ok := c.Volume()
	if !ok {
		return Snapshot{}, errNoVolume
	}

	uid, err := id.InstanceID()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read instance id: %w", err)
	}
	if uid == "" {
		return Snapshot{}, audio.ErrNoIdentifier
	}

	pid, err := id.ProcessID()
	if err != nil {
		pid = 0
	}

	level, err := vol.MasterVolume()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read volume: %w", err)
	}
	muted, err := vol.Mute()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read mute: %w", err)
	}
	state, err := c.State()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read state: %w", err)
	}

	return Snapshot{
		PID:      pid,
		UID:      uid,
		Name:     displayName(ctx, id, pid, names),
		Volume:   level,
		IsMuted:  muted,
		IsActive: state == audio.StateActive,
	}, nil
}

func displayName(ctx context.Context, id audio.SessionIdentity, pid uint32, names NameResolver) string {
	if name, err := id.DisplayName(); err == nil && name != "" {
		return name
	}
	if names != nil {
		if name, ok := names.Resolve(ctx, pid); ok {
			return name
		}
	}
	return UnknownName
}

// Key reads the (pid, uid) pair used to match mutation requests.
func Key(c audio.SessionControl) (pid uint32, uid string, err error) {
	id, ok := c.Identity()
	if !ok {
		return 0, "", errNoIdentity
	}
	if uid, err = id.InstanceID(); err != nil {
		return 0, "", fmt.Errorf("read instance id: %w", err)
	}
	if uid == "" {
		return 0, "", audio.ErrNoIdentifier
	}
	if pid, err = id.ProcessID(); err != nil {
		pid = 0
	}
	return pid, uid, nil
}
