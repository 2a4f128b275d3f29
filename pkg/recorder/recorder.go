// Package recorder captures note events into Standard MIDI Files and
// reads them back for replay
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/james-see/midi2atem/pkg/midiin"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	// TicksPerQuarter is the file resolution
	TicksPerQuarter = 480
	// Tempo is fixed so ticks map to wall-clock time
	Tempo = 120.0
)

var ErrEmpty = errors.New("recorder: nothing recorded")

// Take is a note event at an offset from the start of a recording
type Take struct {
	Offset time.Duration
	Event  midiin.NoteEvent
}

// Recorder collects note events with their arrival time
type Recorder struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time
	takes []Take
}

// New creates an empty recorder. The clock starts at the first event.
func New() *Recorder {
	return &Recorder{now: time.Now}
}

// Observe records an event. It matches bridge.Options.Observe.
func (r *Recorder) Observe(ev midiin.NoteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now()
	if len(r.takes) == 0 {
		r.start = t
	}
	r.takes = append(r.takes, Take{Offset: t.Sub(r.start), Event: ev})
}

// Len returns the number of recorded events
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.takes)
}

// Bytes renders the recording as a single track SMF
func (r *Recorder) Bytes() ([]byte, error) {
	r.mu.Lock()
	takes := append([]Take(nil), r.takes...)
	r.mu.Unlock()

	if len(takes) == 0 {
		return nil, ErrEmpty
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var track smf.Track
	microsecondsPerBeat := uint32(60000000.0 / Tempo)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))

	var last uint32
	for _, tk := range takes {
		tick := toTicks(tk.Offset)
		ev := tk.Event
		var msg midi.Message
		if ev.On {
			msg = midi.NoteOn(ev.Channel, ev.Note, ev.Velocity)
		} else {
			msg = midi.NoteOff(ev.Channel, ev.Note)
		}
		track.Add(tick-last, msg)
		last = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile saves the recording
func (r *Recorder) WriteFile(filename string) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Parse reads note events from SMF data. Events of all tracks are
// returned in file order per track.
func Parse(data []byte) ([]Take, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	resolution := uint16(TicksPerQuarter)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		resolution = mt.Resolution()
	}

	var takes []Take
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			note, ok := midiin.Decode("smf", midi.Message(ev.Message))
			if !ok {
				continue
			}
			takes = append(takes, Take{Offset: fromTicks(tick, resolution), Event: note})
		}
	}
	return takes, nil
}

// ReadFile parses a recorded file
func ReadFile(filename string) ([]Take, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return Parse(data)
}

// Replay hands takes to submit at their recorded offsets, scaled by speed
func Replay(ctx context.Context, takes []Take, speed float64, submit func(midiin.NoteEvent) bool) error {
	if speed <= 0 {
		speed = 1
	}
	start := time.Now()
	for _, tk := range takes {
		due := time.Duration(float64(tk.Offset) / speed)
		if wait := due - time.Since(start); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		submit(tk.Event)
	}
	return nil
}

func toTicks(d time.Duration) uint32 {
	usPerTick := 60000000.0 / Tempo / TicksPerQuarter
	return uint32(math.Round(float64(d.Microseconds()) / usPerTick))
}

func fromTicks(tick int64, resolution uint16) time.Duration {
	usPerTick := 60000000.0 / Tempo / float64(resolution)
	return time.Duration(math.Round(float64(tick)*usPerTick)) * time.Microsecond
}
