//go:build !windows

// Package wasapi binds the audio session capability surface to the Windows
// Audio Session API. On other platforms Open always fails.
package wasapi

import "github.com/tabmix/mixer/internal/audio"

type Subsystem struct{}

func New() *Subsystem { return &Subsystem{} }

func (s *Subsystem) Open() (audio.SessionManager, error) {
	return nil, audio.ErrUnsupported
}
