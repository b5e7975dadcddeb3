// Package bus distributes organism run events to in-process subscribers
// and, through the Observer, to WebSocket clients.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of run event.
type EventType string

// Event types published by the simulation host.
const (
	// Run lifecycle
	EventRunStarted   EventType = "run_started"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"

	// Per-tick
	EventTickCompleted   EventType = "tick_completed"
	EventResponseEmitted EventType = "response_emitted"

	// Learning
	EventAssociationFormed  EventType = "association_formed"
	EventAssociationRemoved EventType = "association_removed"
)

// AllEventTypes lists every event type in publication order.
var AllEventTypes = []EventType{
	EventRunStarted,
	EventTickCompleted,
	EventResponseEmitted,
	EventAssociationFormed,
	EventAssociationRemoved,
	EventRunCompleted,
	EventRunFailed,
}

// Event is a single run event.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	RunID    string `json:"run_id,omitempty"`
	Organism string `json:"organism,omitempty"`
	Instant  uint64 `json:"instant"`

	// Response and association events
	Action   string  `json:"action,omitempty"`
	Context  string  `json:"context,omitempty"`
	Strength float64 `json:"strength,omitempty"`

	// Tick events
	Emitting []string           `json:"emitting,omitempty"`
	Drives   map[string]float64 `json:"drives,omitempty"`
	Emotions map[string]float64 `json:"emotions,omitempty"`

	Details string `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current UTC time.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}
