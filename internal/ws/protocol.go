package ws

import "github.com/tabmix/mixer/internal/event"

// Envelope wraps every frame pushed to UI clients. Type is the outbound
// event name; Seq increases by one per broadcast so clients can spot gaps.
type Envelope struct {
	Type    string      `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload event.Event `json:"payload"`
}

// VolumeRequest is the body of POST /api/sessions/volume.
type VolumeRequest struct {
	PID    uint32  `json:"pid"`
	UID    string  `json:"uid"`
	Volume float32 `json:"volume"`
}

// MuteRequest is the body of POST /api/sessions/mute.
type MuteRequest struct {
	PID  uint32 `json:"pid"`
	UID  string `json:"uid"`
	Mute bool   `json:"mute"`
}

// TabVolumeRequest is the body of POST /api/tabs/volume.
type TabVolumeRequest struct {
	TabID  int     `json:"tabId"`
	Volume float64 `json:"volume"`
}

// TabMuteRequest is the body of POST /api/tabs/mute.
type TabMuteRequest struct {
	TabID         int     `json:"tabId"`
	Mute          bool    `json:"mute"`
	InitialVolume float64 `json:"initialVolume"`
}

// ErrorResponse is returned with every non-2xx API status.
type ErrorResponse struct {
	Error string `json:"error"`
}
