// Package main is the entry point for the headless midi2atem server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/james-see/midi2atem/pkg/app"
	"github.com/james-see/midi2atem/pkg/config"
	"github.com/james-see/midi2atem/pkg/logging"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	configFile := flag.String("config", "", "Config file (YAML)")
	osc := flag.Bool("osc", false, "Accept triggers over OSC")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	cfg.API.Enabled = true
	cfg.API.Port = *port
	if *osc {
		cfg.OSC.Enabled = true
	}

	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON)
	fmt.Printf("Starting midi2atem API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, app.Options{Log: log})
	err = run(ctx, a)
	if cerr := a.Close(); cerr != nil {
		log.Error().Err(cerr).Msg("Shutdown")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App) error {
	if err := a.OpenInputs(ctx); err != nil {
		return err
	}
	if err := a.Connect(ctx); err != nil {
		return err
	}
	return a.Serve(ctx)
}
