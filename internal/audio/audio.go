// Package audio defines the capability surface the mixer consumes from the
// operating system's audio session subsystem. Concrete bindings live in
// subpackages: wasapi (Windows) and simulated (in-memory, used by mock mode
// and tests).
//
// The interfaces mirror the shape of the OS API rather than hiding it: a
// session handle exposes optional capabilities that must be looked up before
// use, and every listener registration returns a Registration that must be
// undone exactly once.
package audio

import "errors"

var (
	// ErrUnsupported is returned by Subsystem.Open when no audio backend is
	// available on this platform.
	ErrUnsupported = errors.New("audio: session subsystem not supported on this platform")

	// ErrNoIdentifier is returned when a session reports an empty instance
	// identifier. Such sessions cannot be tracked.
	ErrNoIdentifier = errors.New("audio: session has no instance identifier")
)

// SessionState is the lifecycle state the OS reports for a session. The
// numeric values match the Windows AudioSessionState enumeration.
type SessionState int

const (
	StateInactive SessionState = iota
	StateActive
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DisconnectReason explains why the OS disconnected a session. It is carried
// for logging only; every reason ends the session.
type DisconnectReason int

const (
	DisconnectDeviceRemoval DisconnectReason = iota
	DisconnectServerShutdown
	DisconnectFormatChanged
	DisconnectSessionLogoff
	DisconnectSessionDisconnected
	DisconnectExclusiveModeOverride
)

var disconnectReasonNames = map[DisconnectReason]string{
	DisconnectDeviceRemoval:         "device_removal",
	DisconnectServerShutdown:        "server_shutdown",
	DisconnectFormatChanged:         "format_changed",
	DisconnectSessionLogoff:         "session_logoff",
	DisconnectSessionDisconnected:   "session_disconnected",
	DisconnectExclusiveModeOverride: "exclusive_mode_override",
}

func (r DisconnectReason) String() string {
	if s, ok := disconnectReasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// Subsystem is the entry point into an audio backend.
type Subsystem interface {
	// Open initializes the subsystem for the calling OS thread and activates
	// the session manager of the default output device. The caller must keep
	// the goroutine locked to its OS thread (runtime.LockOSThread) until the
	// returned manager is closed, because the initialization is per thread.
	Open() (SessionManager, error)
}

// SessionManager enumerates sessions on one device and accepts the global
// notification listener for newly created sessions.
type SessionManager interface {
	// Enumerate returns a point-in-time enumerator over the device's
	// sessions. The enumerator must be released by the caller.
	Enumerate() (SessionEnumerator, error)

	// RegisterNotification registers the process-wide listener invoked when
	// any new session appears. Only one notifier may be registered at a time.
	RegisterNotification(n SessionNotification) (Registration, error)

	// Close releases the manager and tears down the per-thread
	// initialization performed by Subsystem.Open.
	Close() error
}

// SessionEnumerator is a snapshot of the sessions present when it was created.
type SessionEnumerator interface {
	Count() (int, error)

	// Session returns a new reference to the i-th session. The caller owns
	// the reference and must Release it.
	Session(i int) (SessionControl, error)

	Release()
}

// SessionControl is a reference-counted handle to one audio session.
type SessionControl interface {
	State() (SessionState, error)

	// Register attaches a listener that receives this session's change
	// notifications until the returned Registration is undone.
	Register(events SessionEvents) (Registration, error)

	// Volume looks up the per-session volume capability. The second return
	// value is false when the session does not support it.
	Volume() (SimpleVolume, bool)

	// Identity looks up the capability exposing process and instance
	// identifiers. The second return value is false when unsupported.
	Identity() (SessionIdentity, bool)

	// Release drops the caller's reference. The handle must not be used
	// afterwards.
	Release()
}

// SimpleVolume reads and writes a session's master volume and mute flag.
type SimpleVolume interface {
	MasterVolume() (float32, error)
	SetMasterVolume(level float32) error
	Mute() (bool, error)
	SetMute(mute bool) error
}

// SessionIdentity exposes the identifiers of a session.
type SessionIdentity interface {
	ProcessID() (uint32, error)

	// InstanceID is unique per session instance and stable for its whole
	// lifetime. It is the only reliable join key for a session.
	InstanceID() (string, error)

	// DisplayName may be empty; callers fall back to the process name.
	DisplayName() (string, error)
}

// SessionEvents receives per-session notifications. Implementations are
// invoked on threads owned by the audio backend, possibly concurrently with
// each other and with the rest of the program, and must not block.
type SessionEvents interface {
	OnSimpleVolumeChanged(volume float32, muted bool)
	OnStateChanged(state SessionState)
	OnSessionDisconnected(reason DisconnectReason)
}

// SessionNotification receives the global "session created" notification.
// The control passed in is a new reference owned by the callee.
type SessionNotification interface {
	OnSessionCreated(control SessionControl)
}

// Registration undoes exactly one listener registration.
type Registration interface {
	Unregister() error
}
