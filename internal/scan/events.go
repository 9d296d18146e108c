package scan

import (
	"sort"
	"sync"
	"time"

	"battery-passport/internal/domain"
)

// EventType classifies messages emitted during a scan session.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	SessionID string           `json:"sessionId"`
	Label     string           `json:"label,omitempty"`
	Type      EventType        `json:"type"`
	State     domain.ScanState `json:"state,omitempty"`
	Message   string           `json:"message,omitempty"`
	Value     string           `json:"value,omitempty"`
}

// EventBus keeps the most recent scan events for pollers that missed pushes.
type EventBus struct {
	mu      sync.RWMutex
	lastSeq int64
	limit   int
	events  []Event
}

// DefaultEventLimit is the history kept when NewEventBus gets no limit.
const DefaultEventLimit = 200

// NewEventBus creates a bus holding at most limit events.
func NewEventBus(limit int) *EventBus {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return &EventBus{limit: limit, events: make([]Event, 0, limit)}
}

// Publish stamps event with the next sequence number and records it,
// dropping the oldest entry once the bus is full.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeq++
	event.Seq = b.lastSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if len(b.events) == b.limit {
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = event
	} else {
		b.events = append(b.events, event)
	}
	return event
}

// Since returns a copy of the recorded events newer than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := sort.Search(len(b.events), func(i int) bool { return b.events[i].Seq > seq })
	if i == len(b.events) {
		return nil
	}
	return append([]Event(nil), b.events[i:]...)
}

// LastSeq returns the sequence number of the newest event, or 0.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}
