// Package main is the entry point for midi2atem CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/james-see/midi2atem/pkg/app"
	"github.com/james-see/midi2atem/pkg/bridge"
	"github.com/james-see/midi2atem/pkg/config"
	"github.com/james-see/midi2atem/pkg/logging"
	"github.com/james-see/midi2atem/pkg/midiin"
	"github.com/james-see/midi2atem/pkg/recorder"
	"github.com/james-see/midi2atem/pkg/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile  string
	midiPorts   []string
	switchers   []string
	channel     int
	attempts    int
	offline     bool
	debug       bool
	jsonLogs    bool
	recordFile  string
	enableOSC   bool
	enableAPI   bool
	serverPort  int
	replaySpeed float64
	force       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "midi2atem",
	Short: "Switch ATEM inputs from a MIDI controller",
	Long: `midi2atem listens for MIDI note-on messages and switches the program
input of one or more Blackmagic ATEM switchers according to a note table.

Without a config file it drives two switchers: an HD switcher on its
program bus and an ATEM 1 M/E Production Studio 4K routed through Aux 1.

Examples:
  midi2atem
  midi2atem run --midi nanoPAD --switcher hd=192.168.0.245
  midi2atem ports
  midi2atem scenarios -c show.yaml
  midi2atem tui
  midi2atem serve --port 8080
  midi2atem replay show.mid`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
	RunE:         runBridge,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bridge MIDI notes to the switchers (default)",
	RunE:  runBridge,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI input ports",
	RunE:  runPorts,
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Print the note table",
	RunE:  runScenarios,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the live terminal monitor",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless with the REST API",
	RunE:  runServe,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file.mid>",
	Short: "Play a recorded MIDI file into the switchers",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (YAML)")
	pf.StringSliceVarP(&midiPorts, "midi", "m", nil, "MIDI input port number or name (repeatable)")
	pf.StringArrayVarP(&switchers, "switcher", "s", nil, "Switcher as name=address (repeatable, replaces configured switchers)")
	pf.IntVar(&channel, "channel", 0, "MIDI channel 0-15, -1 for all")
	pf.IntVar(&attempts, "attempts", 0, "Connection attempts per switcher")
	pf.BoolVar(&offline, "allow-offline", false, "Keep listening when no switcher connects")
	pf.BoolVarP(&debug, "debug", "d", false, "Log protocol traffic")
	pf.BoolVar(&jsonLogs, "json", false, "Log as JSON")
	pf.StringVar(&recordFile, "record", "", "Record incoming notes to a MIDI file")
	pf.BoolVar(&enableOSC, "osc", false, "Accept triggers over OSC")

	rootCmd.Flags().BoolVar(&enableAPI, "api", false, "Start the REST API")
	runCmd.Flags().BoolVar(&enableAPI, "api", false, "Start the REST API")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	// replay command
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed factor")

	// config init command
	configInitCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	// Add commands
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if len(midiPorts) > 0 {
		cfg.MIDI.Ports = midiPorts
	}
	if cmd.Flags().Changed("channel") {
		cfg.MIDI.Channel = channel
	}
	if attempts > 0 {
		cfg.Connect.Attempts = attempts
	}
	if offline {
		cfg.Connect.AllowOffline = true
	}
	if debug {
		cfg.Log.Level = "trace"
	}
	if jsonLogs {
		cfg.Log.JSON = true
	}
	if recordFile != "" {
		cfg.Record = recordFile
	}
	if enableOSC {
		cfg.OSC.Enabled = true
	}
	if enableAPI {
		cfg.API.Enabled = true
	}
	if err := app.ApplySwitcherFlags(cfg, switchers); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return serve(cfg, true)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.API.Enabled = true
	if cmd.Flags().Changed("port") || cfg.API.Port == 0 {
		cfg.API.Port = serverPort
	}
	return serve(cfg, false)
}

func serve(cfg *config.Config, interactive bool) error {
	log := newLogger(cfg)
	ctx, stop := signalContext()
	defer stop()

	a := app.New(cfg, app.Options{Log: log, Interactive: interactive})
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Shutdown")
		}
		fmt.Println("Exiting...")
	}()

	if err := a.OpenInputs(ctx); err != nil {
		return ignoreCanceled(err)
	}
	if err := a.Connect(ctx); err != nil {
		return ignoreCanceled(err)
	}
	return a.Serve(ctx)
}

// ignoreCanceled treats an interrupt as a normal exit
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runPorts(cmd *cobra.Command, args []string) error {
	defer midiin.CloseDriver()

	ports := midiin.ListPorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI input ports available.")
		return nil
	}
	midiin.PrintPorts(os.Stdout, ports)
	return nil
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Println("Switchers:")
	for _, sc := range cfg.Switchers {
		fmt.Printf("  %-6s %-16s bus=%s\n", sc.Name, sc.Address, sc.Bus)
	}
	fmt.Println("\nScenarios:")
	for _, sc := range cfg.Scenarios {
		fmt.Printf("  Note %3d: %s\n", sc.Note, sc.Label)
		for _, cue := range sc.Cues {
			fmt.Printf("            %s -> input %d\n", cue.Switcher, cue.Input)
		}
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	// The monitor owns the terminal, so logs only go to the event pane.
	fwd := &tui.Forwarder{}
	a := app.New(cfg, app.Options{Log: zerolog.Nop(), Interactive: true, Notifiers: []bridge.Notifier{fwd}})
	defer a.Close()

	if err := a.OpenInputs(ctx); err != nil {
		return ignoreCanceled(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Serve(ctx) }()

	if err := tui.Run(ctx, a.Bridge, fwd, a.Connect); err != nil {
		return err
	}
	cancel()
	return <-serveErr
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	takes, err := recorder.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Replaying %d events from %s\n", len(takes), args[0])

	log := newLogger(cfg)
	ctx, stop := signalContext()
	defer stop()

	a := app.New(cfg, app.Options{Log: log})
	defer a.Close()

	if err := a.Connect(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- a.Bridge.Run(ctx) }()

	if err := recorder.Replay(ctx, takes, replaySpeed, a.Bridge.Submit); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Bridge.Close()
	return <-done
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "midi2atem.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("✓ Wrote default configuration to %s\n", path)
	return nil
}
