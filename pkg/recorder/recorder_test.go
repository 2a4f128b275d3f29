package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/james-see/midi2atem/pkg/midiin"
)

// clock returns times advancing by the given steps
func clock(steps ...time.Duration) func() time.Time {
	base := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	i := 0
	var elapsed time.Duration
	return func() time.Time {
		if i < len(steps) {
			elapsed += steps[i]
			i++
		}
		return base.Add(elapsed)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	r := New()
	r.now = clock(0, 100*time.Millisecond, 400*time.Millisecond, 1500*time.Millisecond)

	events := []midiin.NoteEvent{
		{Channel: 9, Note: 25, Velocity: 100, On: true},
		{Channel: 9, Note: 25},
		{Channel: 9, Note: 32, Velocity: 64, On: true},
		{Channel: 0, Note: 32},
	}
	for _, ev := range events {
		r.Observe(ev)
	}
	if r.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", r.Len())
	}

	path := filepath.Join(t.TempDir(), "show.mid")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	takes, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(takes) != len(events) {
		t.Fatalf("takes = %d, want %d", len(takes), len(events))
	}

	wantOffsets := []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}
	for i, tk := range takes {
		if tk.Offset != wantOffsets[i] {
			t.Errorf("take %d offset = %v, want %v", i, tk.Offset, wantOffsets[i])
		}
		want := events[i]
		if tk.Event.Note != want.Note || tk.Event.Channel != want.Channel || tk.Event.Triggers() != want.Triggers() {
			t.Errorf("take %d = %+v, want %+v", i, tk.Event, want)
		}
	}
	if takes[0].Event.Velocity != 100 {
		t.Errorf("velocity = %d, want 100", takes[0].Event.Velocity)
	}
}

func TestBytesEmpty(t *testing.T) {
	if _, err := New().Bytes(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Bytes() error = %v, want ErrEmpty", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not a midi file")); err == nil {
		t.Error("Parse() expected error")
	}
}

func TestReplay(t *testing.T) {
	takes := []Take{
		{Offset: 0, Event: midiin.NoteEvent{Note: 25, Velocity: 1, On: true}},
		{Offset: 40 * time.Millisecond, Event: midiin.NoteEvent{Note: 27, Velocity: 1, On: true}},
	}

	var got []uint8
	start := time.Now()
	err := Replay(context.Background(), takes, 2, func(ev midiin.NoteEvent) bool {
		got = append(got, ev.Note)
		return true
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(got) != 2 || got[0] != 25 || got[1] != 27 {
		t.Errorf("replayed notes = %v", got)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Replay finished after %v, want at least 20ms", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	late := []Take{{Offset: time.Hour}}
	if err := Replay(ctx, late, 1, func(midiin.NoteEvent) bool { return true }); !errors.Is(err, context.Canceled) {
		t.Errorf("Replay() with cancelled context error = %v", err)
	}
}
