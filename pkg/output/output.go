// Package output decouples CLI user messaging from rendering. Commands emit
// events through the Output interface; subscribers render them as styled
// terminal text or JSON lines without the commands knowing which is active.
package output

import (
	"sync"
	"time"
)

// EventType identifies the category of an output event.
type EventType string

const (
	// EventInfo is a general message, always visible.
	EventInfo EventType = "info"

	// EventWarning is a non-fatal condition worth the operator's attention.
	EventWarning EventType = "warning"

	// EventError is a failure message.
	EventError EventType = "error"

	// EventTable is tabular data (finding summaries, history listings).
	EventTable EventType = "table"

	// EventProgress is a scanner progress update.
	EventProgress EventType = "progress"

	// EventDiag is diagnostic detail, gated by verbosity.
	EventDiag EventType = "diag"
)

// Level is the verbosity gate for diagnostic events.
type Level int

const (
	LevelNormal  Level = 0
	LevelVerbose Level = 1
	LevelDebug   Level = 2
)

// Event is a single output event emitted by command logic.
type Event struct {
	Type      EventType
	Level     Level
	Message   string
	Data      any
	Metadata  map[string]any
	Timestamp time.Time
}

// Subscriber receives events from a stream. Handle cannot return an error;
// a subscriber that fails to render drops the event.
type Subscriber interface {
	Name() string
	ShouldHandle(event Event) bool
	Handle(event Event)
}

// EventStream fans events out to subscribers synchronously, in subscription
// order. Safe for concurrent emitters.
type EventStream struct {
	mu          sync.Mutex
	subscribers []Subscriber
}

// NewEventStream creates an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{}
}

// Subscribe registers a subscriber. Duplicate names are allowed; each
// registration receives every matching event.
func (s *EventStream) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// SubscriberCount returns the number of registered subscribers.
func (s *EventStream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Emit delivers the event to every subscriber whose ShouldHandle accepts it.
func (s *EventStream) Emit(event Event) {
	s.mu.Lock()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.ShouldHandle(event) {
			sub.Handle(event)
		}
	}
}

// Output is the interface command logic uses to talk to the user.
type Output interface {
	// Info emits an always-visible message.
	Info(message string)

	// Warning emits a non-fatal warning.
	Warning(message string)

	// Error emits an error message.
	Error(err error)

	// Table emits headers and rows for tabular rendering.
	Table(headers []string, rows [][]string)

	// Progress reports current/total completion with a label.
	Progress(current, total int, message string)

	// Diag emits diagnostic detail shown only at or above the given
	// verbosity.
	Diag(level Level, message string, metadata map[string]any)
}
