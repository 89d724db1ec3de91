// Package event defines the outbound events the mixer publishes to its UI
// consumers. Delivery is fire-and-forget: sinks never report failures back
// to emitters.
package event

// Outbound event names, as seen by consumers.
const (
	NameSessionCreated = "audio-session-created"
	NameSessionClosed  = "audio-session-closed"
	NameVolumeChanged  = "audio-session-volume-changed"
	NameStateChanged   = "session-state-changed"
	NameServerError    = "server-error"
	NameServerMessage  = "server-message"
)

// Event is one outbound event. The concrete value is the JSON payload.
type Event interface {
	EventName() string
}

// Sink consumes outbound events. Emit must be safe for concurrent use and
// must not block: it is called from audio backend callback threads.
type Sink interface {
	Emit(ev Event)
}

// SessionCreated announces a session the monitor started tracking.
type SessionCreated struct {
	PID      uint32  `json:"pid"`
	UID      string  `json:"uid"`
	Name     string  `json:"name"`
	Volume   float32 `json:"volume"`
	IsMuted  bool    `json:"is_muted"`
	IsActive bool    `json:"is_active"`
}

// SessionClosed announces that a session expired or disconnected.
type SessionClosed struct {
	UID string `json:"uid"`
}

// VolumeChanged reports a session's new volume and mute state.
type VolumeChanged struct {
	UID       string  `json:"uid"`
	NewVolume float32 `json:"newVolume"`
	IsMuted   bool    `json:"isMuted"`
}

// StateChanged reports a session becoming active or inactive.
type StateChanged struct {
	UID      string `json:"uid"`
	IsActive bool   `json:"is_active"`
}

// ServerError carries a user-visible failure.
type ServerError struct {
	Message string `json:"message"`
}

// InboundMessage relays a frame received from an external agent.
type InboundMessage struct {
	Text string `json:"text"`
}

func (SessionCreated) EventName() string { return NameSessionCreated }
func (SessionClosed) EventName() string  { return NameSessionClosed }
func (VolumeChanged) EventName() string  { return NameVolumeChanged }
func (StateChanged) EventName() string   { return NameStateChanged }
func (ServerError) EventName() string    { return NameServerError }
func (InboundMessage) EventName() string { return NameServerMessage }

// Fanout forwards every event to each of its sinks in order.
type Fanout []Sink

func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		s.Emit(ev)
	}
}
