package midiin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/james-see/midi2atem/pkg/config"
	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2"
)

var testPorts = []Port{
	{Number: 0, Name: "Midi Through Port-0"},
	{Number: 1, Name: "APC mini MIDI 1"},
	{Number: 2, Name: "nanoPAD2 PAD"},
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		msg      midi.Message
		ok       bool
		note     uint8
		channel  uint8
		triggers bool
	}{
		{"note on", midi.NoteOn(0, 25, 100), true, 25, 0, true},
		{"note on channel 10", midi.NoteOn(9, 36, 1), true, 36, 9, true},
		{"note off", midi.NoteOff(0, 25), true, 25, 0, false},
		{"control change", midi.ControlChange(0, 7, 100), false, 0, 0, false},
		{"program change", midi.ProgramChange(0, 3), false, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Decode("pads", tt.msg)
			if ok != tt.ok {
				t.Fatalf("Decode() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if ev.Note != tt.note || ev.Channel != tt.channel {
				t.Errorf("Decode() = %+v, want note %d channel %d", ev, tt.note, tt.channel)
			}
			if ev.Triggers() != tt.triggers {
				t.Errorf("Triggers() = %v, want %v", ev.Triggers(), tt.triggers)
			}
			if ev.Port != "pads" {
				t.Errorf("Port = %q, want pads", ev.Port)
			}
		})
	}
}

func TestDecodeZeroVelocityNeverTriggers(t *testing.T) {
	ev, ok := Decode("pads", midi.NoteOn(0, 25, 0))
	if ok && ev.Triggers() {
		t.Errorf("note on with velocity 0 triggers: %+v", ev)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		selector string
		want     int
		err      bool
	}{
		{"1", 1, false},
		{" 2 ", 2, false},
		{"apc", 1, false},
		{"NANOPAD2 PAD", 2, false},
		{"7", 0, true},
		{"launchpad", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			p, err := Resolve(testPorts, tt.selector)
			if tt.err {
				if err == nil {
					t.Errorf("Resolve(%q) expected error, got %v", tt.selector, p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.selector, err)
			}
			if p.Number != tt.want {
				t.Errorf("Resolve(%q) = %d, want %d", tt.selector, p.Number, tt.want)
			}
		})
	}

	if _, err := Resolve(testPorts, "9"); !errors.Is(err, ErrNoPort) {
		t.Errorf("Resolve(9) error = %v, want ErrNoPort", err)
	}
}

func TestPromptRetriesUntilOpened(t *testing.T) {
	in := strings.NewReader("abc\n7\n0\n1, 2\n")
	var out bytes.Buffer
	var opened []int

	open := func(p Port) error {
		if p.Number == 0 {
			return errors.New("port busy")
		}
		opened = append(opened, p.Number)
		return nil
	}

	ports, err := Prompt(context.Background(), in, &out, testPorts, open)
	if err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}
	if len(ports) != 2 || ports[0].Number != 1 || ports[1].Number != 2 {
		t.Errorf("Prompt() = %v, want ports 1 and 2", ports)
	}
	if len(opened) != 2 {
		t.Errorf("opened %v, want two ports", opened)
	}

	text := out.String()
	for _, want := range []string{
		"Available MIDI ports:",
		"1: APC mini MIDI 1",
		"Please enter a valid number.",
		"Error opening port 0: port busy",
		"Please try another port.",
		"Opened MIDI port: nanoPAD2 PAD",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt output missing %q:\n%s", want, text)
		}
	}
	if strings.Count(text, "Please enter a valid number.") != 2 {
		t.Errorf("expected two invalid-number messages:\n%s", text)
	}
}

func TestPromptEOF(t *testing.T) {
	_, err := Prompt(context.Background(), strings.NewReader("x\n"), &bytes.Buffer{}, testPorts, func(Port) error { return nil })
	if !errors.Is(err, ErrPromptClosed) {
		t.Errorf("Prompt() error = %v, want ErrPromptClosed", err)
	}
}

func TestPromptCanceled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Prompt(ctx, r, io.Discard, testPorts, func(Port) error { return nil })
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Prompt() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Prompt did not return after cancel")
	}
}

func TestParseSelectionDeduplicates(t *testing.T) {
	ports, err := parseSelection("1,1, 2", testPorts)
	if err != nil {
		t.Fatalf("parseSelection() error = %v", err)
	}
	if len(ports) != 2 {
		t.Errorf("parseSelection() = %v, want 2 ports", ports)
	}
}

func TestListenerChannelFilter(t *testing.T) {
	var got []NoteEvent
	l := NewListener(func(ev NoteEvent) { got = append(got, ev) }, 0, zerolog.Nop())

	for _, ev := range []NoteEvent{
		{Channel: 0, Note: 25, Velocity: 100, On: true},
		{Channel: 3, Note: 27, Velocity: 100, On: true},
	} {
		if l.accepts(ev) {
			l.deliver(ev)
		}
	}
	if len(got) != 1 || got[0].Note != 25 {
		t.Errorf("delivered %+v, want only channel 0", got)
	}

	l.Close()
	l.deliver(NoteEvent{Note: 29, On: true, Velocity: 1})
	if len(got) != 1 {
		t.Errorf("delivered after Close: %+v", got)
	}

	omni := NewListener(func(NoteEvent) {}, Omni, zerolog.Nop())
	if !omni.accepts(NoteEvent{Channel: 15}) {
		t.Error("omni listener should accept channel 15")
	}
}

func TestDefaultChannelIsFirst(t *testing.T) {
	l := NewListener(func(NoteEvent) {}, config.Default().MIDI.Channel, zerolog.Nop())

	tests := []struct {
		status byte
		want   bool
	}{
		{0x90, true},
		{0x91, false},
		{0x9F, false},
	}

	for _, tt := range tests {
		ev, ok := Decode("pads", midi.Message{tt.status, 25, 100})
		if !ok {
			t.Fatalf("Decode(%#x) failed", tt.status)
		}
		if got := l.accepts(ev); got != tt.want {
			t.Errorf("accepts(status %#x) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
