// Package app wires configuration, MIDI inputs, switchers and the optional
// OSC and REST front ends into a running bridge
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/james-see/midi2atem/pkg/api"
	"github.com/james-see/midi2atem/pkg/atem"
	"github.com/james-see/midi2atem/pkg/bridge"
	"github.com/james-see/midi2atem/pkg/config"
	"github.com/james-see/midi2atem/pkg/midiin"
	"github.com/james-see/midi2atem/pkg/oscin"
	"github.com/james-see/midi2atem/pkg/recorder"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// historySize is how many events the REST API can return
const historySize = 200

var (
	ErrNoSwitchers  = errors.New("no switchers connected")
	ErrBadSwitcher  = errors.New("switcher flag must be name=address")
	ErrNoMIDIInputs = errors.New("no MIDI input opened")
)

// SwitcherFactory creates the session for one configured switcher
type SwitcherFactory func(cfg config.SwitcherConfig, handlers atem.Handlers) bridge.Switcher

// Options controls how the app is wired
type Options struct {
	Log zerolog.Logger
	// Interactive prompts for MIDI ports on Stdin when none are configured
	Interactive bool
	Stdin       io.Reader
	Stdout      io.Writer
	// Notifiers receive operator events in addition to the log
	Notifiers []bridge.Notifier
	// NewSwitcher defaults to an ATEM client
	NewSwitcher SwitcherFactory
}

// App is a wired bridge
type App struct {
	Config   *config.Config
	Bridge   *bridge.Bridge
	History  *bridge.History
	Recorder *recorder.Recorder

	opts     Options
	log      zerolog.Logger
	listener *midiin.Listener
}

// New builds the bridge described by cfg. Nothing is opened yet.
func New(cfg *config.Config, opts Options) *App {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.NewSwitcher == nil {
		opts.NewSwitcher = atemSwitcher(cfg, opts.Log)
	}

	a := &App{
		Config:  cfg,
		History: bridge.NewHistory(historySize, zerolog.InfoLevel),
		opts:    opts,
		log:     opts.Log,
	}

	notify := bridge.Notifiers{bridge.LogNotifier(opts.Log), a.History}
	notify = append(notify, opts.Notifiers...)

	var targets []*bridge.Target
	handlers := bridge.SwitcherHandlers(notify)
	for _, sc := range cfg.Switchers {
		targets = append(targets, &bridge.Target{
			Switcher: opts.NewSwitcher(sc, handlers),
			Bus:      sc.Bus,
			ME:       sc.ME,
			Aux:      sc.Aux,
		})
	}

	bopts := bridge.Options{
		Settle:    cfg.Settle.Std(),
		QueueSize: cfg.MIDI.QueueSize,
	}
	if cfg.Record != "" {
		a.Recorder = recorder.New()
		bopts.Observe = a.Recorder.Observe
	}

	a.Bridge = bridge.New(bridge.MappingFromConfig(cfg.Scenarios), targets, notify, bopts)
	a.listener = midiin.NewListener(func(ev midiin.NoteEvent) { a.Bridge.Submit(ev) }, cfg.MIDI.Channel, opts.Log)
	return a
}

func atemSwitcher(cfg *config.Config, log zerolog.Logger) SwitcherFactory {
	return func(sc config.SwitcherConfig, handlers atem.Handlers) bridge.Switcher {
		return atem.New(sc.Address,
			atem.WithName(sc.Name),
			atem.WithLogger(log),
			atem.WithHandlers(handlers),
			atem.WithConnectTimeout(cfg.Connect.Timeout.Std()),
			atem.WithDebug(log.GetLevel() <= zerolog.TraceLevel),
		)
	}
}

// OpenInputs opens the configured MIDI ports. Without a selection it
// prompts when interactive, and falls back to a virtual port when no
// hardware input exists. The prompt gives up when ctx is done.
func (a *App) OpenInputs(ctx context.Context) error {
	ports := midiin.ListPorts()

	if len(a.Config.MIDI.Ports) > 0 {
		for _, sel := range a.Config.MIDI.Ports {
			p, err := midiin.Resolve(ports, sel)
			if err != nil {
				return err
			}
			if err := a.listener.Attach(p); err != nil {
				return err
			}
		}
		return nil
	}

	if len(ports) == 0 || !a.opts.Interactive {
		if len(ports) == 0 {
			fmt.Fprintln(a.opts.Stdout, "No MIDI input ports available. Creating virtual port...")
		}
		if err := a.listener.AttachVirtual(a.Config.MIDI.VirtualName); err != nil {
			return fmt.Errorf("%w: %w", ErrNoMIDIInputs, err)
		}
		return nil
	}

	if _, err := midiin.Prompt(ctx, a.opts.Stdin, a.opts.Stdout, ports, a.listener.Attach); err != nil {
		return fmt.Errorf("MIDI port selection: %w", err)
	}
	return nil
}

// InputPorts returns the names of the open MIDI ports
func (a *App) InputPorts() []string {
	return a.listener.Ports()
}

// Connect opens the switcher sessions and prints the startup summary
func (a *App) Connect(ctx context.Context) error {
	n := a.Bridge.Connect(ctx, bridge.RetryPolicy{
		Attempts: a.Config.Connect.Attempts,
		Delay:    a.Config.Connect.Delay.Std(),
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	a.Bridge.Summary()
	if n == 0 {
		if !a.Config.Connect.AllowOffline {
			return ErrNoSwitchers
		}
		a.log.Warn().Msg("No switchers connected, listening anyway")
		return nil
	}
	if n < len(a.Config.Switchers) {
		a.log.Warn().Msgf("%d of %d switchers connected", n, len(a.Config.Switchers))
	}
	return nil
}

// Serve runs the bridge and the enabled front ends until ctx is done
func (a *App) Serve(ctx context.Context) error {
	var osc *oscin.Server
	if a.Config.OSC.Enabled {
		var err error
		osc, err = oscin.Listen(a.Config.OSC.Address, func(note uint8) bool {
			return a.Bridge.Trigger("osc", note)
		}, a.log)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Bridge.Run(ctx)
	})

	if osc != nil {
		g.Go(func() error {
			return osc.Serve(ctx)
		})
	}

	if a.Config.API.Enabled {
		srv := api.NewServer(a.Bridge, a.History, a.log)
		a.log.Info().Msgf("API listening on :%d (docs at http://localhost:%d/swagger/index.html)", a.Config.API.Port, a.Config.API.Port)
		g.Go(func() error {
			return srv.Run(ctx, a.Config.API.Port)
		})
	}

	return g.Wait()
}

// Close releases MIDI ports and switcher sessions and saves the recording
func (a *App) Close() error {
	a.listener.Close()
	a.Bridge.Close()
	a.Bridge.Disconnect()
	midiin.CloseDriver()

	if a.Recorder == nil {
		return nil
	}
	if a.Recorder.Len() == 0 {
		a.log.Info().Msg("Nothing recorded")
		return nil
	}
	if err := a.Recorder.WriteFile(a.Config.Record); err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	a.log.Info().Str("file", a.Config.Record).Int("events", a.Recorder.Len()).Msg("Recording saved")
	return nil
}

// ApplySwitcherFlags replaces the configured switchers with name=address
// pairs. Known names keep their bus settings. Cues for switchers that are
// no longer configured are dropped.
func ApplySwitcherFlags(cfg *config.Config, flags []string) error {
	if len(flags) == 0 {
		return nil
	}

	switchers := make([]config.SwitcherConfig, 0, len(flags))
	for _, f := range flags {
		name, addr, ok := strings.Cut(f, "=")
		name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
		if !ok || name == "" || addr == "" {
			return fmt.Errorf("%w: %q", ErrBadSwitcher, f)
		}
		sc := config.SwitcherConfig{Name: name, Bus: config.BusAuto}
		if known := cfg.FindSwitcher(name); known != nil {
			sc = *known
		}
		sc.Address = addr
		switchers = append(switchers, sc)
	}
	cfg.Switchers = switchers
	cfg.DropUnknownCues()
	return nil
}
