package client

import (
	"encoding/json"

	"github.com/tabmix/mixer/internal/event"
)

// Session is one audio session as returned by GET /api/sessions.
type Session struct {
	PID      uint32  `json:"pid"`
	UID      string  `json:"uid"`
	Name     string  `json:"name"`
	Volume   float32 `json:"volume"`
	IsMuted  bool    `json:"is_muted"`
	IsActive bool    `json:"is_active"`
}

// FromCreated converts an audio-session-created payload.
func FromCreated(ev event.SessionCreated) Session {
	return Session{
		PID:      ev.PID,
		UID:      ev.UID,
		Name:     ev.Name,
		Volume:   ev.Volume,
		IsMuted:  ev.IsMuted,
		IsActive: ev.IsActive,
	}
}

// Envelope is a frame pushed by the daemon on /ws.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// decodeEvent turns an envelope into its typed event. Unknown types are
// reported with ok false.
func decodeEvent(env Envelope) (ev event.Event, ok bool) {
	var err error
	switch env.Type {
	case event.NameSessionCreated:
		var p event.SessionCreated
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case event.NameSessionClosed:
		var p event.SessionClosed
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case event.NameVolumeChanged:
		var p event.VolumeChanged
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case event.NameStateChanged:
		var p event.StateChanged
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case event.NameServerError:
		var p event.ServerError
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	case event.NameServerMessage:
		var p event.InboundMessage
		err = json.Unmarshal(env.Payload, &p)
		ev = p
	default:
		return nil, false
	}
	return ev, err == nil
}
