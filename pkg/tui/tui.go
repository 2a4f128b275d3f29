// Package tui provides a live terminal monitor for midi2atem
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/midi2atem/pkg/bridge"
	"github.com/rs/zerolog"
)

// Tally-light color scheme
var (
	tallyRed   = lipgloss.Color("#FF2D2D")
	tallyGreen = lipgloss.Color("#39FF14")
	amber      = lipgloss.Color("#FFB000")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(tallyRed).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(tallyRed).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(amber).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(tallyRed).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(tallyGreen).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(amber)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(tallyRed).
			Padding(0, 2)
)

// maxEvents is how many events the monitor keeps on screen
const maxEvents = 12

// State represents the current TUI state
type State int

const (
	StateConnecting State = iota
	StateMonitor
)

// Controller is the part of the bridge the monitor drives
type Controller interface {
	Status() []bridge.Status
	Mapping() bridge.Mapping
	Trigger(source string, note uint8) bool
}

// EventMsg carries a bridge event into the program
type EventMsg bridge.Event

// ReadyMsg signals that startup finished
type ReadyMsg struct {
	Err error
}

type statusTickMsg struct{}

// Model represents the TUI model
type Model struct {
	state     State
	ctrl      Controller
	scenarios []bridge.Scenario
	statuses  []bridge.Status
	events    []bridge.Event
	menuIndex int
	spinner   spinner.Model
	err       error
	width     int
	height    int
}

// New creates a new TUI model
func New(ctrl Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(tallyRed)

	return Model{
		state:     StateConnecting,
		ctrl:      ctrl,
		scenarios: ctrl.Mapping().Scenarios(),
		statuses:  ctrl.Status(),
		spinner:   s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickStatus())
}

func tickStatus() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return statusTickMsg{} })
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case spinner.TickMsg:
		if m.state != StateConnecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusTickMsg:
		m.statuses = m.ctrl.Status()
		return m, tickStatus()

	case ReadyMsg:
		m.state = StateMonitor
		m.err = msg.Err
		m.statuses = m.ctrl.Status()
		return m, nil

	case EventMsg:
		if msg.Level < zerolog.InfoLevel {
			return m, nil
		}
		m.events = append(m.events, bridge.Event(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(m.scenarios)-1 {
			m.menuIndex++
		}
	case "enter", " ":
		if len(m.scenarios) == 0 {
			return m, nil
		}
		note := m.scenarios[m.menuIndex].Note
		if !m.ctrl.Trigger("tui", note) {
			m.events = append(m.events, bridge.Event{
				Time:    time.Now(),
				Level:   zerolog.WarnLevel,
				Message: fmt.Sprintf("Could not queue note %d", note),
			})
		}
	case "c":
		m.events = nil
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	if m.state == StateConnecting {
		s.WriteString(boxStyle.Render(fmt.Sprintf("%s Connecting to switchers...", m.spinner.View())))
		s.WriteString("\n")
	} else if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
		s.WriteString("\n")
	}

	s.WriteString(m.viewSwitchers())
	s.WriteString("\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.viewScenarios(), " ", m.viewEvents()))

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: trigger • c: clear • q: quit"))

	return s.String()
}

func (m Model) viewSwitchers() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SWITCHERS "))
	s.WriteString("\n")
	for _, st := range m.statuses {
		if !st.Connected {
			s.WriteString(errorStyle.Render(fmt.Sprintf("● %-6s %s  disconnected", st.Name, st.Address)))
			s.WriteString("\n")
			continue
		}
		s.WriteString(successStyle.Render(fmt.Sprintf("● %-6s", st.Name)))
		s.WriteString(menuStyle.Render(fmt.Sprintf("%s  %s", st.Address, st.Model)))
		s.WriteString(statusStyle.UnsetPaddingTop().Render(fmt.Sprintf("  %s: %s", st.Bus, st.InputName)))
		s.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func (m Model) viewScenarios() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SCENARIOS "))
	s.WriteString("\n")
	for i, sc := range m.scenarios {
		line := fmt.Sprintf("%3d  %s", sc.Note, sc.Label)
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			s.WriteString(menuStyle.Render("  " + line))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func (m Model) viewEvents() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" EVENTS "))
	s.WriteString("\n")
	if len(m.events) == 0 {
		s.WriteString(menuStyle.Render("Waiting for MIDI input..."))
	}
	for _, e := range m.events {
		line := e.Time.Format("15:04:05") + " "
		if e.Switcher != "" {
			line += "[" + e.Switcher + "] "
		}
		line += e.Message

		switch {
		case e.Level >= zerolog.ErrorLevel:
			s.WriteString(errorStyle.Render(line))
		case e.Level == zerolog.WarnLevel:
			s.WriteString(warnStyle.Render(line))
		default:
			s.WriteString(menuStyle.Render(line))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func asciiLogo() string {
	logo := `
  __  __ ___ ____ ___ ____     _  _____ _____ __  __
 |  \/  |_ _|  _ \_ _|___ \   / \|_   _| ____|  \/  |
 | |\/| || || | | | |  __) | / _ \ | | |  _| | |\/| |
 | |  | || || |_| | | / __/ / ___ \| | | |___| |  | |
 |_|  |_|___|____/___|_____/_/   \_\_| |_____|_|  |_|
`
	return lipgloss.NewStyle().Foreground(tallyRed).Render(logo)
}

// Forwarder is a bridge.Notifier feeding events into a running program
type Forwarder struct {
	mu sync.Mutex
	p  *tea.Program
}

// Notify sends the event to the attached program, if any
func (f *Forwarder) Notify(e bridge.Event) {
	f.mu.Lock()
	p := f.p
	f.mu.Unlock()
	if p != nil {
		p.Send(EventMsg(e))
	}
}

func (f *Forwarder) attach(p *tea.Program) {
	f.mu.Lock()
	f.p = p
	f.mu.Unlock()
}

// Run starts the TUI application. startup runs in the background and the
// monitor leaves the connecting state when it returns.
func Run(ctx context.Context, ctrl Controller, fwd *Forwarder, startup func(context.Context) error) error {
	p := tea.NewProgram(New(ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	if fwd != nil {
		fwd.attach(p)
		defer fwd.attach(nil)
	}

	go func() {
		var err error
		if startup != nil {
			err = startup(ctx)
		}
		p.Send(ReadyMsg{Err: err})
	}()

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
