package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/james-see/midi2atem/pkg/atem"
	"github.com/rs/zerolog"
)

// maxListedInputs caps the input listing printed after connecting
const maxListedInputs = 20

// RetryPolicy is a fixed attempt counter with a fixed delay
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Connect opens every switcher session in turn and returns how many
// connected. Failures are reported and do not stop the others.
func (b *Bridge) Connect(ctx context.Context, policy RetryPolicy) int {
	connected := 0
	for _, t := range b.Targets() {
		if err := b.connectWithRetry(ctx, t.Switcher, policy); err != nil {
			if ctx.Err() != nil {
				return connected
			}
			continue
		}
		connected++
	}
	return connected
}

func (b *Bridge) connectWithRetry(ctx context.Context, sw Switcher, policy RetryPolicy) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		b.emit(zerolog.InfoLevel, sw.Name(), fmt.Sprintf("Connecting to ATEM at %s (attempt %d/%d)", sw.Addr(), attempt, attempts))
		if err = sw.Connect(ctx); err == nil {
			return nil
		}
		b.emit(zerolog.WarnLevel, sw.Name(), fmt.Sprintf("Connection attempt %d failed: %v", attempt, err))

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay):
			}
		}
	}

	b.emit(zerolog.ErrorLevel, sw.Name(), fmt.Sprintf("Failed to connect to ATEM %s at %s after %d attempts", sw.Name(), sw.Addr(), attempts))
	for _, hint := range troubleshooting(sw.Addr()) {
		b.emit(zerolog.WarnLevel, sw.Name(), hint)
	}
	return fmt.Errorf("connect %s: %w", sw.Name(), err)
}

func troubleshooting(addr string) []string {
	return []string{
		"Troubleshooting:",
		"  1. Check that the switcher is powered on and connected to the network",
		fmt.Sprintf("  2. Verify the switcher address %s in ATEM Setup", addr),
		"  3. Make sure this computer is on the same subnet as the switcher",
		fmt.Sprintf("  4. Check that no firewall blocks UDP port %d", atem.DefaultPort),
	}
}

// Summary reports model, current input and named inputs of every switcher
func (b *Bridge) Summary() {
	for _, t := range b.Targets() {
		sw := t.Switcher
		if !sw.Connected() {
			b.emit(zerolog.ErrorLevel, sw.Name(), fmt.Sprintf("Failed to connect to ATEM %s", sw.Name()))
			continue
		}
		b.emit(zerolog.InfoLevel, sw.Name(), fmt.Sprintf("Connected to ATEM %s. Model: %s", sw.Name(), sw.Model()))

		bus := t.ResolvedBus()
		if src, ok := t.Current(bus); ok {
			b.emit(zerolog.InfoLevel, sw.Name(), fmt.Sprintf("Current %s input: %s", t.Describe(bus), src))
		}

		inputs := sw.Inputs()
		if len(inputs) == 0 {
			continue
		}
		b.emit(zerolog.InfoLevel, sw.Name(), "Available inputs:")
		for i, in := range inputs {
			if i == maxListedInputs {
				b.emit(zerolog.InfoLevel, sw.Name(), fmt.Sprintf("  ... and %d more", len(inputs)-maxListedInputs))
				break
			}
			b.emit(zerolog.InfoLevel, sw.Name(), fmt.Sprintf("  Input %d: %s", uint16(in.Source), in.LongName))
		}
	}
}

// Disconnect closes every open switcher session
func (b *Bridge) Disconnect() {
	for _, t := range b.Targets() {
		if !t.Switcher.Connected() {
			continue
		}
		if err := t.Switcher.Disconnect(); err != nil {
			b.emit(zerolog.WarnLevel, t.Switcher.Name(), fmt.Sprintf("Disconnect failed: %v", err))
		}
	}
}

// SwitcherHandlers reports switcher session hooks through n
func SwitcherHandlers(n Notifier) atem.Handlers {
	send := func(level zerolog.Level, c *atem.Client, msg string) {
		n.Notify(Event{Time: time.Now(), Level: level, Switcher: c.Name(), Message: msg})
	}
	return atem.Handlers{
		ConnectAttempt: func(c *atem.Client) {
			send(zerolog.DebugLevel, c, fmt.Sprintf("Trying to connect to switcher at %s", c.Addr()))
		},
		Connect: func(c *atem.Client) {
			send(zerolog.InfoLevel, c, fmt.Sprintf("Connected to switcher at %s", c.Addr()))
		},
		Disconnect: func(c *atem.Client) {
			send(zerolog.WarnLevel, c, fmt.Sprintf("DISCONNECTED from switcher at %s", c.Addr()))
		},
	}
}
