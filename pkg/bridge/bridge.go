package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/james-see/midi2atem/pkg/atem"
	"github.com/james-see/midi2atem/pkg/midiin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueSize bounds pending note events
const DefaultQueueSize = 64

// Options tunes a Bridge
type Options struct {
	// Settle is how long to wait before reading back the switcher state
	Settle time.Duration
	// QueueSize bounds Submit; full queues drop events
	QueueSize int
	// Observe sees every submitted event as it arrives, note offs and
	// dropped events included
	Observe func(midiin.NoteEvent)
}

// Bridge turns note events into switcher input changes
type Bridge struct {
	mapping Mapping
	targets map[string]*Target
	order   []string
	notify  Notifier
	settle  time.Duration
	observe func(midiin.NoteEvent)

	queue   chan midiin.NoteEvent
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

// New creates a bridge dispatching mapping onto targets
func New(mapping Mapping, targets []*Target, notify Notifier, opts Options) *Bridge {
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	if notify == nil {
		notify = Notifiers{}
	}
	b := &Bridge{
		mapping: mapping,
		targets: make(map[string]*Target, len(targets)),
		notify:  notify,
		settle:  opts.Settle,
		observe: opts.Observe,
		queue:   make(chan midiin.NoteEvent, opts.QueueSize),
	}
	for _, t := range targets {
		name := t.Switcher.Name()
		b.targets[name] = t
		b.order = append(b.order, name)
	}
	return b
}

// Mapping returns the note table
func (b *Bridge) Mapping() Mapping {
	return b.mapping
}

// Targets returns the targets in configuration order
func (b *Bridge) Targets() []*Target {
	out := make([]*Target, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.targets[name])
	}
	return out
}

// Target returns the named target
func (b *Bridge) Target(name string) (*Target, bool) {
	t, ok := b.targets[name]
	return t, ok
}

// Dropped returns how many events were discarded on a full queue
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Submit queues an event without blocking. It is safe to call from MIDI
// driver callbacks.
func (b *Bridge) Submit(ev midiin.NoteEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if b.observe != nil {
		b.observe(ev)
	}
	select {
	case b.queue <- ev:
		return true
	default:
		b.dropped.Add(1)
		b.emit(zerolog.WarnLevel, "", fmt.Sprintf("Event queue full, dropping note %d", ev.Note))
		return false
	}
}

// Trigger queues a note on for the given note number
func (b *Bridge) Trigger(source string, note uint8) bool {
	return b.Submit(midiin.NoteEvent{Port: source, Note: note, Velocity: 127, On: true})
}

// Closed reports whether Close was called
func (b *Bridge) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close stops Run after the queued events are handled
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
}

// Run handles queued events one at a time until ctx is done or the
// bridge is closed.
func (b *Bridge) Run(ctx context.Context) error {
	b.emit(zerolog.InfoLevel, "", "Waiting for MIDI input... Press Ctrl+C to exit.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-b.queue:
			if !ok {
				return nil
			}
			b.HandleNote(ctx, ev)
		}
	}
}

// HandleNote dispatches one event. Only note ons with a non-zero velocity
// trigger; each switcher in the scenario is driven concurrently.
func (b *Bridge) HandleNote(ctx context.Context, ev midiin.NoteEvent) []Result {
	if !ev.Triggers() {
		return nil
	}
	b.emit(zerolog.InfoLevel, "", fmt.Sprintf("Received Note On: %d", ev.Note))

	sc, ok := b.mapping.Lookup(ev.Note)
	if !ok {
		b.emit(zerolog.WarnLevel, "", fmt.Sprintf("Unassigned Note: %d", ev.Note))
		return nil
	}
	if sc.Label != "" {
		b.emit(zerolog.InfoLevel, "", fmt.Sprintf("Scenario note %d: %s", sc.Note, sc.Label))
	}

	results := make([]Result, len(sc.Cues))
	var g errgroup.Group
	for i, cue := range sc.Cues {
		i, cue := i, cue
		g.Go(func() error {
			results[i] = b.apply(ctx, cue)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (b *Bridge) apply(ctx context.Context, cue Cue) Result {
	res := Result{Switcher: cue.Switcher, Requested: cue.Input}

	t, ok := b.targets[cue.Switcher]
	if !ok {
		res.Err = fmt.Errorf("%w: %q", ErrUnknownSwitcher, cue.Switcher)
		b.emit(zerolog.ErrorLevel, cue.Switcher, fmt.Sprintf("Error setting input: %v", res.Err))
		return res
	}

	name := t.Switcher.Name()
	res.Bus = t.ResolvedBus()
	bus := t.Describe(res.Bus)

	res.Before, _ = t.Current(res.Bus)
	b.emit(zerolog.InfoLevel, name, fmt.Sprintf("Current %s input: %s", bus, res.Before))
	b.emit(zerolog.InfoLevel, name, fmt.Sprintf("Attempting to set %s to input %d", bus, uint16(cue.Input)))

	if err := t.Set(res.Bus, cue.Input); err != nil {
		res.Err = fmt.Errorf("set %s on %s: %w", bus, name, err)
		b.emit(zerolog.ErrorLevel, name, fmt.Sprintf("Error setting input: %v", err))
		b.emit(zerolog.ErrorLevel, name, fmt.Sprintf("Switcher state: connected=%t, model=%s",
			t.Switcher.Connected(), t.Switcher.Model()))
		return res
	}

	if b.settle > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(b.settle):
		}
	}

	res.After, _ = t.Current(res.Bus)
	b.emit(zerolog.InfoLevel, name, fmt.Sprintf("New %s input: %s", bus, res.After))
	if res.After != cue.Input {
		res.Err = fmt.Errorf("%w: %s on %s reports %s", ErrNotApplied, bus, name, res.After)
		b.emit(zerolog.WarnLevel, name, fmt.Sprintf("Failed to switch %s to input %d. Switcher reports input %s",
			bus, uint16(cue.Input), res.After))
		return res
	}
	b.emit(zerolog.InfoLevel, name, fmt.Sprintf("Successfully switched %s to input %d", bus, uint16(cue.Input)))
	return res
}

func (b *Bridge) emit(level zerolog.Level, switcher, msg string) {
	b.notify.Notify(Event{Time: time.Now(), Level: level, Switcher: switcher, Message: msg})
}

// Status is a snapshot of one switcher
type Status struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
	Model     string `json:"model"`
	Bus       Bus    `json:"bus"`
	Input     uint16 `json:"input"`
	InputName string `json:"input_name"`
}

// Status returns a snapshot of every switcher in configuration order
func (b *Bridge) Status() []Status {
	out := make([]Status, 0, len(b.order))
	for _, t := range b.Targets() {
		sw := t.Switcher
		st := Status{
			Name:      sw.Name(),
			Address:   sw.Addr(),
			Connected: sw.Connected(),
			Model:     sw.Model(),
			Bus:       t.ResolvedBus(),
		}
		if src, ok := t.Current(st.Bus); ok {
			st.Input = uint16(src)
			st.InputName = inputName(sw.Inputs(), src)
		}
		out = append(out, st)
	}
	return out
}

func inputName(inputs []atem.InputProperties, src atem.VideoSource) string {
	for _, in := range inputs {
		if in.Source == src && in.LongName != "" {
			return in.LongName
		}
	}
	return src.String()
}
