package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/james-see/midi2atem/pkg/bridge"
	"github.com/rs/zerolog"
)

type fakeController struct {
	full      bool
	triggered []uint8
}

func (f *fakeController) Status() []bridge.Status {
	return []bridge.Status{
		{Name: "hd", Address: "192.168.0.245", Connected: true, Model: "ATEM Television Studio HD", Bus: bridge.BusProgram, InputName: "Camera 4"},
		{Name: "4k", Address: "192.168.0.31"},
	}
}

func (f *fakeController) Mapping() bridge.Mapping {
	return bridge.Mapping{
		32: {Note: 32, Label: "Input 3"},
		25: {Note: 25, Label: "Input 1"},
		27: {Note: 27, Label: "Input 2"},
	}
}

func (f *fakeController) Trigger(source string, note uint8) bool {
	if f.full {
		return false
	}
	f.triggered = append(f.triggered, note)
	return true
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestNavigateAndTrigger(t *testing.T) {
	ctrl := &fakeController{}
	m := update(t, New(ctrl), ReadyMsg{}, key("down"), key("down"), key("down"), key("enter"), key("up"), key("enter"))

	if m.state != StateMonitor {
		t.Errorf("state = %v, want StateMonitor", m.state)
	}
	if len(ctrl.triggered) != 2 || ctrl.triggered[0] != 32 || ctrl.triggered[1] != 27 {
		t.Errorf("triggered = %v, want [32 27]", ctrl.triggered)
	}
}

func TestTriggerFailureShowsWarning(t *testing.T) {
	m := update(t, New(&fakeController{full: true}), key("enter"))
	if len(m.events) != 1 || m.events[0].Level != zerolog.WarnLevel {
		t.Errorf("events = %+v", m.events)
	}
}

func TestEventsAreTrimmedAndFiltered(t *testing.T) {
	m := New(&fakeController{})
	m = update(t, m, EventMsg{Level: zerolog.DebugLevel, Message: "Received [PrgI]"})
	for i := 0; i < maxEvents+3; i++ {
		m = update(t, m, EventMsg{Level: zerolog.InfoLevel, Message: "Received Note On"})
	}
	if len(m.events) != maxEvents {
		t.Errorf("events = %d, want %d", len(m.events), maxEvents)
	}
	for _, e := range m.events {
		if e.Level < zerolog.InfoLevel {
			t.Errorf("debug event kept: %+v", e)
		}
	}

	m = update(t, m, key("c"))
	if len(m.events) != 0 {
		t.Errorf("events after clear = %d", len(m.events))
	}
}

func TestQuit(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, cmd := New(&fakeController{}).Update(k)
		if cmd == nil {
			t.Fatalf("%s: no command returned", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: command did not quit", k)
		}
	}
}

func TestView(t *testing.T) {
	m := update(t, New(&fakeController{}),
		ReadyMsg{Err: errors.New("1 of 2 switchers connected")},
		EventMsg{Level: zerolog.ErrorLevel, Switcher: "4k", Message: "Failed to connect to ATEM 4k"},
	)
	view := m.View()
	for _, want := range []string{"SWITCHERS", "hd", "Camera 4", "disconnected", "Input 2", "Failed to connect to ATEM 4k", "1 of 2 switchers connected"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	connecting := New(&fakeController{}).View()
	if !strings.Contains(connecting, "Connecting to switchers") {
		t.Error("connecting view missing spinner line")
	}
}
