package bridge

import (
	"sync"

	"github.com/rs/zerolog"
)

// History keeps the most recent events
type History struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
	level  zerolog.Level
}

// NewHistory keeps up to size events at or above level
func NewHistory(size int, level zerolog.Level) *History {
	if size < 1 {
		size = 1
	}
	return &History{events: make([]Event, size), level: level}
}

// Notify records an event
func (h *History) Notify(e Event) {
	if e.Level < h.level {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[h.next] = e
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

// Events returns the recorded events, oldest first
func (h *History) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Event(nil), h.events[:h.next]...)
	}
	out := make([]Event, 0, len(h.events))
	out = append(out, h.events[h.next:]...)
	return append(out, h.events[:h.next]...)
}
