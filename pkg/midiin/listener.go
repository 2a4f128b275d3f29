package midiin

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Listener forwards note events from any number of input ports to a sink.
// The sink is called from the driver's callback goroutine and must not block.
type Listener struct {
	sink    func(NoteEvent)
	channel int
	log     zerolog.Logger

	mu     sync.Mutex
	ports  []drivers.In
	stops  []func()
	closed bool
}

// NewListener creates a listener filtering on channel (0-15, or Omni)
func NewListener(sink func(NoteEvent), channel int, log zerolog.Logger) *Listener {
	return &Listener{sink: sink, channel: channel, log: log}
}

// Attach opens a hardware port and starts listening on it
func (l *Listener) Attach(p Port) error {
	in, err := openPort(p)
	if err != nil {
		return err
	}
	return l.listen(in)
}

// AttachVirtual creates a virtual input port and starts listening on it
func (l *Listener) AttachVirtual(name string) error {
	in, err := openVirtual(name)
	if err != nil {
		return err
	}
	return l.listen(in)
}

func (l *Listener) listen(in drivers.In) error {
	name := in.String()
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		ev, ok := Decode(name, msg)
		if !ok || !l.accepts(ev) {
			return
		}
		l.log.Trace().Str("port", name).Uint8("note", ev.Note).Uint8("velocity", ev.Velocity).Msg("note")
		l.deliver(ev)
	})
	if err != nil {
		return fmt.Errorf("listen on %s: %w", name, err)
	}

	l.mu.Lock()
	l.ports = append(l.ports, in)
	l.stops = append(l.stops, stop)
	l.mu.Unlock()

	l.log.Info().Str("port", name).Msg("Opened MIDI port")
	return nil
}

func (l *Listener) accepts(ev NoteEvent) bool {
	return l.channel == Omni || int(ev.Channel) == l.channel
}

func (l *Listener) deliver(ev NoteEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.sink(ev)
}

// Ports returns the names of the ports being listened to
func (l *Listener) Ports() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.ports))
	for _, in := range l.ports {
		names = append(names, in.String())
	}
	return names
}

// Close stops all listeners and closes their ports
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	stops, ports := l.stops, l.ports
	l.stops, l.ports = nil, nil
	l.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	for _, in := range ports {
		if err := in.Close(); err != nil {
			l.log.Debug().Err(err).Str("port", in.String()).Msg("close port")
		}
	}
}
