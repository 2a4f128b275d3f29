// Package config loads the midi2atem YAML configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Bus selects which switcher bus a cue changes
type Bus string

const (
	BusAuto    Bus = "auto"
	BusProgram Bus = "program"
	BusPreview Bus = "preview"
	BusAux     Bus = "aux"
)

// Omni accepts notes on every MIDI channel
const Omni = -1

var ErrInvalid = errors.New("config: invalid configuration")

// Duration is a time.Duration written as a Go duration string
type Duration time.Duration

// UnmarshalYAML accepts "2s"-style strings
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the time.Duration value
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MIDIConfig selects the input ports
type MIDIConfig struct {
	Ports       []string `yaml:"ports,omitempty"`
	Channel     int      `yaml:"channel"`
	VirtualName string   `yaml:"virtualName"`
	QueueSize   int      `yaml:"queueSize"`
}

// SwitcherConfig describes one switcher session
type SwitcherConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Bus     Bus    `yaml:"bus"`
	ME      int    `yaml:"me"`
	Aux     int    `yaml:"aux"`
}

// ConnectConfig controls connection attempts
type ConnectConfig struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
	Timeout  Duration `yaml:"timeout"`
	// AllowOffline keeps running when no switcher connected
	AllowOffline bool `yaml:"allowOffline"`
}

// CueConfig sets one switcher to one input
type CueConfig struct {
	Switcher string `yaml:"switcher"`
	Input    uint16 `yaml:"input"`
}

// ScenarioConfig maps a note to a set of cues
type ScenarioConfig struct {
	Note  uint8       `yaml:"note"`
	Label string      `yaml:"label"`
	Cues  []CueConfig `yaml:"cues"`
}

// APIConfig enables the REST API
type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// OSCConfig enables the OSC trigger input
type OSCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LogConfig controls console logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the main configuration structure
type Config struct {
	MIDI      MIDIConfig       `yaml:"midi"`
	Switchers []SwitcherConfig `yaml:"switchers"`
	Connect   ConnectConfig    `yaml:"connect"`
	Settle    Duration         `yaml:"settle"`
	Scenarios []ScenarioConfig `yaml:"scenarios"`
	Record    string           `yaml:"record,omitempty"`
	API       APIConfig        `yaml:"api"`
	OSC       OSCConfig        `yaml:"osc"`
	Log       LogConfig        `yaml:"log"`
}

// Default returns the two-switcher rig: an HD switcher on the program bus
// and a 4K production studio routed through Aux 1.
func Default() *Config {
	return &Config{
		MIDI: MIDIConfig{
			Channel:     0,
			VirtualName: "midi2atem virtual input",
			QueueSize:   64,
		},
		Switchers: []SwitcherConfig{
			{Name: "hd", Address: "192.168.0.245", Bus: BusAuto},
			{Name: "4k", Address: "192.168.0.31", Bus: BusAuto},
		},
		Connect: ConnectConfig{
			Attempts: 3,
			Delay:    Duration(2 * time.Second),
			Timeout:  Duration(2 * time.Second),
		},
		Settle: Duration(100 * time.Millisecond),
		Scenarios: []ScenarioConfig{
			scenario(25, "4K ATEM to Program 1, HD ATEM to NDI input (4)", 1, 4),
			scenario(27, "4K ATEM to Program 2, HD ATEM to NDI input (4)", 2, 4),
			scenario(29, "4K ATEM to Program 2, HD ATEM to input 1", 2, 1),
			scenario(30, "4K ATEM to Program 2, HD ATEM to input 2", 2, 2),
			scenario(32, "4K ATEM to Program 2, HD ATEM to input 3", 2, 3),
		},
		API: APIConfig{Port: 8080},
		OSC: OSCConfig{Address: "127.0.0.1:8765"},
		Log: LogConfig{Level: "info"},
	}
}

func scenario(note uint8, label string, input4K, inputHD uint16) ScenarioConfig {
	return ScenarioConfig{
		Note:  note,
		Label: label,
		Cues: []CueConfig{
			{Switcher: "4k", Input: input4K},
			{Switcher: "hd", Input: inputHD},
		},
	}
}

// Load reads a config file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders the config as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the config as YAML
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FindSwitcher returns the switcher config with the given name
func (c *Config) FindSwitcher(name string) *SwitcherConfig {
	for i := range c.Switchers {
		if c.Switchers[i].Name == name {
			return &c.Switchers[i]
		}
	}
	return nil
}

// DropUnknownCues removes cues for switchers that are not configured and
// scenarios left without cues. It returns the number of cues removed.
func (c *Config) DropUnknownCues() int {
	dropped := 0
	scenarios := c.Scenarios[:0]
	for _, sc := range c.Scenarios {
		cues := make([]CueConfig, 0, len(sc.Cues))
		for _, cue := range sc.Cues {
			if c.FindSwitcher(cue.Switcher) == nil {
				dropped++
				continue
			}
			cues = append(cues, cue)
		}
		if len(cues) == 0 {
			continue
		}
		sc.Cues = cues
		scenarios = append(scenarios, sc)
	}
	c.Scenarios = scenarios
	return dropped
}

// Validate checks references between scenarios and switchers
func (c *Config) Validate() error {
	var errs []error

	if c.MIDI.Channel < Omni || c.MIDI.Channel > 15 {
		errs = append(errs, fmt.Errorf("midi.channel %d out of range (-1..15)", c.MIDI.Channel))
	}
	if c.MIDI.QueueSize < 1 {
		errs = append(errs, errors.New("midi.queueSize must be positive"))
	}
	if c.Connect.Attempts < 1 {
		errs = append(errs, errors.New("connect.attempts must be at least 1"))
	}
	if len(c.Switchers) == 0 {
		errs = append(errs, errors.New("no switchers configured"))
	}

	names := make(map[string]bool)
	for _, sw := range c.Switchers {
		switch {
		case sw.Name == "":
			errs = append(errs, fmt.Errorf("switcher with address %q has no name", sw.Address))
		case names[sw.Name]:
			errs = append(errs, fmt.Errorf("duplicate switcher %q", sw.Name))
		}
		names[sw.Name] = true

		if sw.Address == "" {
			errs = append(errs, fmt.Errorf("switcher %q has no address", sw.Name))
		}
		switch sw.Bus {
		case BusAuto, BusProgram, BusPreview, BusAux:
		default:
			errs = append(errs, fmt.Errorf("switcher %q: unknown bus %q", sw.Name, sw.Bus))
		}
		if sw.ME < 0 || sw.Aux < 0 {
			errs = append(errs, fmt.Errorf("switcher %q: negative me/aux index", sw.Name))
		}
	}

	notes := make(map[uint8]bool)
	for _, sc := range c.Scenarios {
		if sc.Note > 127 {
			errs = append(errs, fmt.Errorf("scenario %q: note %d out of range", sc.Label, sc.Note))
		}
		if notes[sc.Note] {
			errs = append(errs, fmt.Errorf("note %d mapped twice", sc.Note))
		}
		notes[sc.Note] = true

		if len(sc.Cues) == 0 {
			errs = append(errs, fmt.Errorf("note %d has no cues", sc.Note))
		}
		seen := make(map[string]bool)
		for _, cue := range sc.Cues {
			if !names[cue.Switcher] {
				errs = append(errs, fmt.Errorf("note %d: unknown switcher %q", sc.Note, cue.Switcher))
			}
			if seen[cue.Switcher] {
				errs = append(errs, fmt.Errorf("note %d: switcher %q cued twice", sc.Note, cue.Switcher))
			}
			seen[cue.Switcher] = true
			if cue.Input == 0 {
				errs = append(errs, fmt.Errorf("note %d: input must be positive", sc.Note))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
