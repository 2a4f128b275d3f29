package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/james-see/midi2atem/pkg/atem"
	"github.com/james-see/midi2atem/pkg/bridge"
	"github.com/james-see/midi2atem/pkg/config"
	"github.com/james-see/midi2atem/pkg/midiin"
	"github.com/rs/zerolog"
)

// offlineSwitcher never connects
type offlineSwitcher struct {
	name     string
	addr     string
	attempts int
}

func (s *offlineSwitcher) Name() string { return s.name }
func (s *offlineSwitcher) Addr() string { return s.addr }
func (s *offlineSwitcher) Connect(ctx context.Context) error {
	s.attempts++
	return atem.ErrTimeout
}
func (s *offlineSwitcher) Disconnect() error { return nil }
func (s *offlineSwitcher) Connected() bool { return false }
func (s *offlineSwitcher) Model() string { return "" }
func (s *offlineSwitcher) ProgramInput(int) (atem.VideoSource, bool) { return 0, false }
func (s *offlineSwitcher) PreviewInput(int) (atem.VideoSource, bool) { return 0, false }
func (s *offlineSwitcher) AuxSource(int) (atem.VideoSource, bool) { return 0, false }
func (s *offlineSwitcher) SetProgramInput(int, atem.VideoSource) error { return atem.ErrNotConnected }
func (s *offlineSwitcher) SetPreviewInput(int, atem.VideoSource) error { return atem.ErrNotConnected }
func (s *offlineSwitcher) SetAuxSource(int, atem.VideoSource) error { return atem.ErrNotConnected }
func (s *offlineSwitcher) Inputs() []atem.InputProperties { return nil }

func testApp(t *testing.T, cfg *config.Config) (*App, map[string]*offlineSwitcher) {
	t.Helper()
	switchers := make(map[string]*offlineSwitcher)
	a := New(cfg, Options{
		Log:    zerolog.Nop(),
		Stdout: &bytes.Buffer{},
		NewSwitcher: func(sc config.SwitcherConfig, _ atem.Handlers) bridge.Switcher {
			s := &offlineSwitcher{name: sc.Name, addr: sc.Address}
			switchers[sc.Name] = s
			return s
		},
	})
	return a, switchers
}

func TestApplySwitcherFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		want    map[string]string
		cues    int
		wantErr bool
	}{
		{"none keeps config", nil, map[string]string{"hd": "192.168.0.245", "4k": "192.168.0.31"}, 10, false},
		{"single switcher", []string{"hd=192.168.0.245"}, map[string]string{"hd": "192.168.0.245"}, 5, false},
		{"both overridden", []string{"4k=10.0.0.4", "hd=10.0.0.5"}, map[string]string{"hd": "10.0.0.5", "4k": "10.0.0.4"}, 10, false},
		{"new name", []string{"mini = 10.0.0.9"}, map[string]string{"mini": "10.0.0.9"}, 0, false},
		{"missing address", []string{"hd="}, nil, 0, true},
		{"no separator", []string{"10.0.0.5"}, nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			err := ApplySwitcherFlags(cfg, tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplySwitcherFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrBadSwitcher) {
					t.Errorf("error %v does not wrap ErrBadSwitcher", err)
				}
				return
			}
			if len(cfg.Switchers) != len(tt.want) {
				t.Fatalf("Switchers = %+v", cfg.Switchers)
			}
			for _, sc := range cfg.Switchers {
				if tt.want[sc.Name] != sc.Address {
					t.Errorf("%s address = %q, want %q", sc.Name, sc.Address, tt.want[sc.Name])
				}
				if sc.Bus != config.BusAuto {
					t.Errorf("%s bus = %q, want auto", sc.Name, sc.Bus)
				}
			}

			cues := 0
			for _, sc := range cfg.Scenarios {
				for _, cue := range sc.Cues {
					if _, ok := tt.want[cue.Switcher]; !ok {
						t.Errorf("note %d still cues %q", sc.Note, cue.Switcher)
					}
					cues++
				}
			}
			if cues != tt.cues {
				t.Errorf("cues = %d, want %d", cues, tt.cues)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestNewBuildsTargets(t *testing.T) {
	cfg := config.Default()
	cfg.Switchers[0].Bus = config.BusPreview
	a, switchers := testApp(t, cfg)

	if len(switchers) != 2 {
		t.Fatalf("created %d switchers, want 2", len(switchers))
	}
	targets := a.Bridge.Targets()
	if targets[0].Switcher.Name() != "hd" || targets[0].Bus != config.BusPreview {
		t.Errorf("first target = %+v", targets[0])
	}
	if len(a.Bridge.Mapping()) != 5 {
		t.Errorf("mapping has %d notes, want 5", len(a.Bridge.Mapping()))
	}
	if a.Recorder != nil {
		t.Error("recorder created without a record path")
	}
}

func TestConnectFailsWithoutSwitchers(t *testing.T) {
	cfg := config.Default()
	cfg.Connect.Attempts = 2
	cfg.Connect.Delay = config.Duration(time.Millisecond)
	a, switchers := testApp(t, cfg)

	err := a.Connect(context.Background())
	if !errors.Is(err, ErrNoSwitchers) {
		t.Fatalf("Connect() error = %v, want ErrNoSwitchers", err)
	}
	for name, s := range switchers {
		if s.attempts != 2 {
			t.Errorf("%s attempts = %d, want 2", name, s.attempts)
		}
	}

	var failed bool
	for _, e := range a.History.Events() {
		if e.Switcher == "4k" && e.Level == zerolog.ErrorLevel {
			failed = true
		}
	}
	if !failed {
		t.Error("history has no connection failure for 4k")
	}
}

func TestConnectAllowOffline(t *testing.T) {
	cfg := config.Default()
	cfg.Connect.Attempts = 1
	cfg.Connect.AllowOffline = true
	a, _ := testApp(t, cfg)

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v, want nil with allowOffline", err)
	}
	results := a.Bridge.HandleNote(context.Background(), midiin.NoteEvent{Note: 25, Velocity: 100, On: true})
	if len(results) != 2 {
		t.Fatalf("HandleNote() results = %d, want 2", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.Err, atem.ErrNotConnected) {
			t.Errorf("%s result error = %v, want ErrNotConnected", r.Switcher, r.Err)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	a, _ := testApp(t, config.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	a.Bridge.Trigger("test", 60)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestCloseSavesRecording(t *testing.T) {
	cfg := config.Default()
	cfg.Record = filepath.Join(t.TempDir(), "show.mid")
	a, _ := testApp(t, cfg)
	if a.Recorder == nil {
		t.Fatal("recorder not created")
	}

	a.Recorder.Observe(midiin.NoteEvent{Note: 25, Velocity: 100, On: true})
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(cfg.Record); err != nil {
		t.Errorf("recording not written: %v", err)
	}
}
