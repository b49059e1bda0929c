package model

import (
	"time"

	"github.com/google/uuid"
)

// Event is a typed JSON payload submitted to the system. Matching flows run
// once per event.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	EventType  string         `json:"event_type"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// CreateEvent is the payload for submitting an event.
type CreateEvent struct {
	EventType string         `json:"event_type" validate:"required"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent stamps a create payload with a fresh id and receipt time.
func NewEvent(create CreateEvent) *Event {
	data := create.Data
	if data == nil {
		data = map[string]any{}
	}
	return &Event{
		ID:         uuid.New(),
		EventType:  create.EventType,
		Data:       data,
		Metadata:   create.Metadata,
		ReceivedAt: time.Now().UTC(),
	}
}
