// Package bridge maps MIDI notes to switcher input changes
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/james-see/midi2atem/pkg/atem"
	"github.com/james-see/midi2atem/pkg/config"
	"github.com/rs/zerolog"
)

// ModelProductionStudio4K is routed through Aux 1 when the bus is auto
const ModelProductionStudio4K = "ATEM 1 M/E Production Studio 4K"

// Bus selects the switcher bus a cue changes
type Bus = config.Bus

// Re-exported bus names
const (
	BusAuto    = config.BusAuto
	BusProgram = config.BusProgram
	BusPreview = config.BusPreview
	BusAux     = config.BusAux
)

var (
	ErrUnknownSwitcher = errors.New("bridge: unknown switcher")
	ErrNotApplied      = errors.New("bridge: switcher did not apply the change")
)

// Switcher is a session with one video switcher
type Switcher interface {
	Name() string
	Addr() string
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Model() string
	ProgramInput(me int) (atem.VideoSource, bool)
	PreviewInput(me int) (atem.VideoSource, bool)
	AuxSource(aux int) (atem.VideoSource, bool)
	SetProgramInput(me int, src atem.VideoSource) error
	SetPreviewInput(me int, src atem.VideoSource) error
	SetAuxSource(aux int, src atem.VideoSource) error
	Inputs() []atem.InputProperties
}

// Target binds a switcher to the bus its cues change
type Target struct {
	Switcher Switcher
	Bus      Bus
	ME       int
	Aux      int
}

// ResolvedBus returns the concrete bus; auto picks Aux for the 4K
// production studio and program otherwise
func (t *Target) ResolvedBus() Bus {
	if t.Bus != BusAuto && t.Bus != "" {
		return t.Bus
	}
	if t.Switcher.Model() == ModelProductionStudio4K {
		return BusAux
	}
	return BusProgram
}

// Describe names the bus as shown to the operator
func (t *Target) Describe(bus Bus) string {
	switch bus {
	case BusAux:
		return fmt.Sprintf("Aux %d", t.Aux+1)
	case BusPreview:
		return "preview"
	default:
		return "program"
	}
}

// Current returns the source on the given bus
func (t *Target) Current(bus Bus) (atem.VideoSource, bool) {
	switch bus {
	case BusAux:
		return t.Switcher.AuxSource(t.Aux)
	case BusPreview:
		return t.Switcher.PreviewInput(t.ME)
	default:
		return t.Switcher.ProgramInput(t.ME)
	}
}

// Set changes the source on the given bus
func (t *Target) Set(bus Bus, src atem.VideoSource) error {
	switch bus {
	case BusAux:
		return t.Switcher.SetAuxSource(t.Aux, src)
	case BusPreview:
		return t.Switcher.SetPreviewInput(t.ME, src)
	default:
		return t.Switcher.SetProgramInput(t.ME, src)
	}
}

// Cue sets one switcher to one input
type Cue struct {
	Switcher string           `json:"switcher"`
	Input    atem.VideoSource `json:"input"`
}

// Scenario is what a single pad press does
type Scenario struct {
	Note  uint8  `json:"note"`
	Label string `json:"label"`
	Cues  []Cue  `json:"cues"`
}

// Mapping is the static note table
type Mapping map[uint8]Scenario

// MappingFromConfig builds the note table
func MappingFromConfig(scenarios []config.ScenarioConfig) Mapping {
	m := make(Mapping, len(scenarios))
	for _, sc := range scenarios {
		s := Scenario{Note: sc.Note, Label: sc.Label}
		for _, c := range sc.Cues {
			s.Cues = append(s.Cues, Cue{Switcher: c.Switcher, Input: atem.VideoSource(c.Input)})
		}
		m[sc.Note] = s
	}
	return m
}

// Lookup returns the scenario for a note
func (m Mapping) Lookup(note uint8) (Scenario, bool) {
	s, ok := m[note]
	return s, ok
}

// Scenarios returns the table ordered by note
func (m Mapping) Scenarios() []Scenario {
	out := make([]Scenario, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Note < out[j].Note })
	return out
}

// Result is the outcome of one cue
type Result struct {
	Switcher  string
	Bus       Bus
	Requested atem.VideoSource
	Before    atem.VideoSource
	After     atem.VideoSource
	Err       error
}

// OK reports whether the switcher confirmed the change
func (r Result) OK() bool {
	return r.Err == nil
}

// Event is one line of operator feedback
type Event struct {
	Time     time.Time     `json:"time"`
	Level    zerolog.Level `json:"level"`
	Switcher string        `json:"switcher,omitempty"`
	Message  string        `json:"message"`
}

// Notifier receives operator feedback. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Event)

// Notify calls f
func (f NotifierFunc) Notify(e Event) { f(e) }

// Notifiers fans an event out to several notifiers
type Notifiers []Notifier

// Notify forwards the event to every notifier
func (ns Notifiers) Notify(e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(e)
		}
	}
}

// LogNotifier writes events to a logger
func LogNotifier(log zerolog.Logger) Notifier {
	return NotifierFunc(func(e Event) {
		ev := log.WithLevel(e.Level)
		if e.Switcher != "" {
			ev = ev.Str("switcher", e.Switcher)
		}
		ev.Msg(e.Message)
	})
}
