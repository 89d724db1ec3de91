package gateway

import (
	"encoding/json"
	"fmt"
)

// Command is an instruction forwarded to the browser extension agent.
type Command interface {
	commandType() string
}

// SetVolume asks the agent to set the gain of one browser tab.
type SetVolume struct {
	TabID  int     `json:"tabId"`
	Volume float64 `json:"volume"`
}

// SetMute asks the agent to mute or unmute one browser tab. InitialVolume
// is the level to restore on unmute.
type SetMute struct {
	TabID         int     `json:"tabId"`
	Mute          bool    `json:"mute"`
	InitialVolume float64 `json:"initialVolume"`
}

func (SetVolume) commandType() string { return "setVolume" }
func (SetMute) commandType() string   { return "setMute" }

// encodeCommand renders cmd as a single JSON text frame with a "type" tag.
func encodeCommand(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case SetVolume:
		return json.Marshal(struct {
			Type string `json:"type"`
			SetVolume
		}{c.commandType(), c})
	case SetMute:
		return json.Marshal(struct {
			Type string `json:"type"`
			SetMute
		}{c.commandType(), c})
	default:
		return nil, fmt.Errorf("gateway: unknown command %T", cmd)
	}
}
