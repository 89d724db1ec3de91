package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/tabmix/mixer/internal/event"
	"github.com/tabmix/mixer/internal/tui/client"
	"github.com/tabmix/mixer/internal/tui/theme"
	"github.com/tabmix/mixer/internal/tui/views/eventlog"
	"github.com/tabmix/mixer/internal/tui/views/status"
)

const (
	volumeStep = 0.05
	nameWidth  = 24
	barWidth   = 30
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHelp
	OverlayLog
)

// sessionsMsg carries the result of GET /api/sessions.
type sessionsMsg struct {
	sessions []client.Session
	err      error
}

// actionMsg carries the result of a volume or mute request.
type actionMsg struct {
	op  string
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	sessions map[string]*client.Session
	order    []string // uids sorted by name
	selected int
	overlay  Overlay
	help     string

	statusBar status.Model
	log       eventlog.Model
	bar       progress.Model

	spring    harmonica.Spring
	levels    map[string]*level
	animating bool

	connected bool
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		sessions:  make(map[string]*client.Session),
		statusBar: status.New(),
		log:       eventlog.New(),
		bar: progress.New(
			progress.WithScaledGradient(theme.GradientLow, theme.GradientHigh),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
		spring: newSpring(),
		levels: make(map[string]*level),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		if m.overlay == OverlayHelp {
			m.help = renderHelp(m.keys, m.width)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.log.Add(eventlog.KindConn, "connected")
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.reload())

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.log.Add(eventlog.KindConn, "disconnected: "+msg.Err.Error())
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSEventMsg:
		cmds := []tea.Cmd{m.ws.ReadLoop(m.ctx), m.apply(msg.Event)}
		if msg.Gap {
			m.log.Add(eventlog.KindConn, fmt.Sprintf("missed events before #%d, reloading", msg.Seq))
			cmds = append(cmds, m.reload())
		}
		return m, tea.Batch(cmds...)

	case sessionsMsg:
		if msg.err != nil {
			m.statusBar.LastError = msg.err.Error()
			m.log.Add(eventlog.KindError, "reload: "+msg.err.Error())
			return m, nil
		}
		m.sessions = make(map[string]*client.Session, len(msg.sessions))
		for i := range msg.sessions {
			s := msg.sessions[i]
			m.sessions[s.UID] = &s
			m.track(s.UID)
		}
		m.rebuildOrder()
		return m, m.animate()

	case actionMsg:
		if msg.err != nil {
			m.statusBar.LastError = msg.err.Error()
			m.log.Add(eventlog.KindError, msg.op+": "+msg.err.Error())
		}
		return m, nil

	case frameMsg:
		if m.step() {
			return m, nextFrame()
		}
		m.animating = false
		return m, nil
	}

	return m, nil
}

// apply folds one daemon event into the session table.
func (m *Model) apply(ev event.Event) tea.Cmd {
	switch ev := ev.(type) {
	case event.SessionCreated:
		s := client.FromCreated(ev)
		m.sessions[s.UID] = &s
		m.track(s.UID)
		m.rebuildOrder()
		m.log.Add(eventlog.KindSession, fmt.Sprintf("created %s (pid %d)", s.Name, s.PID))
		return m.animate()

	case event.SessionClosed:
		if s, ok := m.sessions[ev.UID]; ok {
			m.log.Add(eventlog.KindSession, "closed "+s.Name)
		}
		delete(m.sessions, ev.UID)
		delete(m.levels, ev.UID)
		m.rebuildOrder()

	case event.VolumeChanged:
		if s, ok := m.sessions[ev.UID]; ok {
			s.Volume = ev.NewVolume
			s.IsMuted = ev.IsMuted
			m.log.Add(eventlog.KindVolume, fmt.Sprintf("%s %s", s.Name, volumeLabel(s)))
			m.track(ev.UID)
			return m.animate()
		}

	case event.StateChanged:
		if s, ok := m.sessions[ev.UID]; ok {
			s.IsActive = ev.IsActive
			m.updateCounts()
		}

	case event.ServerError:
		m.statusBar.LastError = ev.Message
		m.log.Add(eventlog.KindError, ev.Message)

	case event.InboundMessage:
		m.statusBar.LastMessage = ev.Text
		m.log.Add(eventlog.KindExt, ev.Text)
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Help) && m.overlay == OverlayHelp:
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		case m.overlay == OverlayLog && key.Matches(msg, m.keys.Up):
			m.log.ScrollUp(1)
		case m.overlay == OverlayLog && key.Matches(msg, m.keys.Down):
			m.log.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.StopDaemon):
		h := m.http
		m.cancel()
		return m, tea.Sequence(func() tea.Msg {
			h.Shutdown()
			return nil
		}, tea.Quit)

	case key.Matches(msg, m.keys.Down):
		if len(m.order) > 0 {
			m.selected = (m.selected + 1) % len(m.order)
		}

	case key.Matches(msg, m.keys.Up):
		if len(m.order) > 0 {
			m.selected = (m.selected - 1 + len(m.order)) % len(m.order)
		}

	case key.Matches(msg, m.keys.VolumeUp):
		return m, m.nudge(volumeStep)

	case key.Matches(msg, m.keys.VolumeDown):
		return m, m.nudge(-volumeStep)

	case key.Matches(msg, m.keys.Mute):
		s := m.current()
		if s == nil {
			return m, nil
		}
		s.IsMuted = !s.IsMuted
		h, pid, uid, mute := m.http, s.PID, s.UID, s.IsMuted
		return m, func() tea.Msg {
			return actionMsg{op: "set mute", err: h.SetMute(pid, uid, mute)}
		}

	case key.Matches(msg, m.keys.Reload):
		return m, m.reload()

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		m.help = renderHelp(m.keys, m.width)

	case key.Matches(msg, m.keys.Log):
		m.overlay = OverlayLog
	}

	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	return m, tea.Quit
}

// nudge changes the selected session's volume by delta, optimistically
// updating the local copy. The daemon confirms with a volume event.
func (m *Model) nudge(delta float32) tea.Cmd {
	s := m.current()
	if s == nil {
		return nil
	}
	next := clamp(s.Volume + delta)
	if next == s.Volume {
		return nil
	}
	s.Volume = next
	m.track(s.UID)
	h, pid, uid := m.http, s.PID, s.UID
	return tea.Batch(m.animate(), func() tea.Msg {
		return actionMsg{op: "set volume", err: h.SetVolume(pid, uid, next)}
	})
}

func (m Model) reload() tea.Cmd {
	h := m.http
	return func() tea.Msg {
		sessions, err := h.Sessions()
		return sessionsMsg{sessions: sessions, err: err}
	}
}

// current returns the selected session, or nil when the list is empty.
func (m Model) current() *client.Session {
	if m.selected < 0 || m.selected >= len(m.order) {
		return nil
	}
	return m.sessions[m.order[m.selected]]
}

// track makes sure uid has an animated bar, starting from empty.
func (m *Model) track(uid string) {
	if _, ok := m.levels[uid]; !ok {
		m.levels[uid] = &level{}
	}
}

// clamp keeps a volume within [0, 1] and rounds it to whole percents.
func clamp(v float32) float32 {
	v = float32(int(v*100+0.5)) / 100
	return min(max(v, 0), 1)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch {
	case m.overlay == OverlayHelp:
		body = m.help
	case m.overlay == OverlayLog:
		body = m.log.View(m.width, m.height-4)
	case !m.connected:
		body = m.renderDisconnected()
	default:
		body = m.renderSessions()
	}

	sections := []string{
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  j/k:select  h/l:volume  m:mute  r:reload  d:log  ?:help  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	msg := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
		theme.StyleDimmed.Render("Reconnecting to the mixer daemon..."),
	)
	return theme.StyleBorder.Padding(1, 4).Render(msg)
}

func (m Model) renderSessions() string {
	lines := []string{theme.StyleHeader.Render(fmt.Sprintf("  %-*s %7s  %-*s", nameWidth+2, "SESSION", "PID", barWidth, "VOLUME"))}
	if len(m.order) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No audio sessions"))
	}
	for i, uid := range m.order {
		prefix := "  "
		if i == m.selected {
			prefix = "> "
		}
		lines = append(lines, prefix+m.renderSessionLine(m.sessions[uid]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderSessionLine(s *client.Session) string {
	glyph := lipgloss.NewStyle().Foreground(theme.StateColor(s.IsActive, s.IsMuted)).Render(theme.StateGlyph(s.IsActive, s.IsMuted))
	name := displayName(s, nameWidth)
	nameStr := lipgloss.NewStyle().Width(nameWidth).Foreground(theme.StateColor(s.IsActive, s.IsMuted)).Render(name)
	pid := fmt.Sprintf("%7d", s.PID)
	return strings.Join([]string{glyph, nameStr, pid, " " + m.bar.ViewAs(m.displayed(s.UID)), volumeLabel(s)}, " ")
}

func volumeLabel(s *client.Session) string {
	label := fmt.Sprintf("%3.0f%%", s.Volume*100)
	if s.IsMuted {
		label += " muted"
	}
	return label
}

// displayName truncates a session name to maxLen runes. Sessions without
// a name show their pid.
func displayName(s *client.Session, maxLen int) string {
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("pid %d", s.PID)
	}
	r := []rune(name)
	if len(r) > maxLen {
		name = string(r[:maxLen-3]) + "..."
	}
	return name
}

func (m *Model) rebuildOrder() {
	var selectedUID string
	if m.selected >= 0 && m.selected < len(m.order) {
		selectedUID = m.order[m.selected]
	}

	m.order = make([]string, 0, len(m.sessions))
	for uid := range m.sessions {
		m.order = append(m.order, uid)
	}
	sort.Slice(m.order, func(i, j int) bool {
		ni := strings.ToLower(m.sessions[m.order[i]].Name)
		nj := strings.ToLower(m.sessions[m.order[j]].Name)
		if ni != nj {
			return ni < nj
		}
		return m.order[i] < m.order[j]
	})

	m.selected = min(m.selected, max(len(m.order)-1, 0))
	for i, uid := range m.order {
		if uid == selectedUID {
			m.selected = i
			break
		}
	}
	m.updateCounts()
}

func (m *Model) updateCounts() {
	active := 0
	for _, s := range m.sessions {
		if s.IsActive {
			active++
		}
	}
	m.statusBar.SetCounts(len(m.sessions), active)
}
