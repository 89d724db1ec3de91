package app

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
)

const (
	fps           = 60
	springFreq    = 8.0
	springDamp    = 1.0
	settleEpsilon = 0.002
)

// frameMsg advances the volume bar animation.
type frameMsg struct{}

// level is the displayed position of one volume bar, chasing the session's
// real volume on a critically damped spring.
type level struct {
	pos, vel float64
}

func newSpring() harmonica.Spring {
	return harmonica.NewSpring(harmonica.FPS(fps), springFreq, springDamp)
}

func nextFrame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return frameMsg{} })
}

// animate starts the frame loop unless it is already running.
func (m *Model) animate() tea.Cmd {
	if m.animating {
		return nil
	}
	m.animating = true
	return nextFrame()
}

// step moves every bar one frame toward its target and reports whether any
// bar is still moving. Bars of closed sessions are dropped.
func (m *Model) step() bool {
	moving := false
	for uid, lv := range m.levels {
		s, ok := m.sessions[uid]
		if !ok {
			delete(m.levels, uid)
			continue
		}
		target := float64(s.Volume)
		lv.pos, lv.vel = m.spring.Update(lv.pos, lv.vel, target)
		if math.Abs(lv.pos-target) < settleEpsilon && math.Abs(lv.vel) < settleEpsilon {
			lv.pos, lv.vel = target, 0
		} else {
			moving = true
		}
	}
	return moving
}

// displayed returns the bar position for uid.
func (m Model) displayed(uid string) float64 {
	if lv, ok := m.levels[uid]; ok {
		return math.Max(0, math.Min(1, lv.pos))
	}
	if s, ok := m.sessions[uid]; ok {
		return float64(s.Volume)
	}
	return 0
}
