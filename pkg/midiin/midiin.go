// Package midiin opens MIDI input ports and turns note messages into events
package midiin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// DefaultVirtualName is the port opened when no hardware input exists
const DefaultVirtualName = "midi2atem virtual input"

// Omni accepts note messages on every channel
const Omni = -1

var (
	ErrNoPort     = errors.New("midiin: no matching MIDI input port")
	ErrNoVirtual  = errors.New("midiin: driver does not support virtual ports")
	ErrNoSelector = errors.New("midiin: empty port selector")
)

// NoteEvent is a note message received on an input port
type NoteEvent struct {
	Port     string
	Channel  uint8
	Note     uint8
	Velocity uint8
	On       bool
}

// Triggers reports whether the event is a key press (note on, velocity > 0)
func (e NoteEvent) Triggers() bool {
	return e.On && e.Velocity > 0
}

// Port describes an input port
type Port struct {
	Number int
	Name   string
}

func (p Port) String() string {
	return fmt.Sprintf("%d: %s", p.Number, p.Name)
}

// ListPorts returns the available input ports
func ListPorts() []Port {
	ins := midi.GetInPorts()
	ports := make([]Port, 0, len(ins))
	for _, in := range ins {
		ports = append(ports, Port{Number: in.Number(), Name: in.String()})
	}
	return ports
}

// Resolve finds a port by number or by case-insensitive name substring
func Resolve(ports []Port, selector string) (Port, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Port{}, ErrNoSelector
	}

	if n, err := strconv.Atoi(selector); err == nil {
		for _, p := range ports {
			if p.Number == n {
				return p, nil
			}
		}
		return Port{}, fmt.Errorf("%w: number %d", ErrNoPort, n)
	}

	needle := strings.ToLower(selector)
	for _, p := range ports {
		if strings.ToLower(p.Name) == needle {
			return p, nil
		}
	}
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			return p, nil
		}
	}
	return Port{}, fmt.Errorf("%w: %q", ErrNoPort, selector)
}

// Decode converts a channel voice message into a NoteEvent. A note on with
// velocity zero is reported as a note off.
func Decode(port string, msg midi.Message) (NoteEvent, bool) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		return NoteEvent{
			Port:     port,
			Channel:  channel,
			Note:     key,
			Velocity: velocity,
			On:       velocity > 0,
		}, true
	case msg.GetNoteOff(&channel, &key, &velocity):
		return NoteEvent{Port: port, Channel: channel, Note: key}, true
	}
	return NoteEvent{}, false
}

func openPort(p Port) (drivers.In, error) {
	for _, in := range midi.GetInPorts() {
		if in.Number() == p.Number && in.String() == p.Name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoPort, p)
}

func openVirtual(name string) (drivers.In, error) {
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, ErrNoVirtual
	}
	in, err := drv.OpenVirtualIn(name)
	if err != nil {
		return nil, fmt.Errorf("open virtual port %q: %w", name, err)
	}
	return in, nil
}

// CloseDriver releases the MIDI driver
func CloseDriver() {
	midi.CloseDriver()
}
