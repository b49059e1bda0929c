package model

import (
	"time"

	"github.com/google/uuid"
)

// FlowTrigger selects the events a flow reacts to. Filters is an object whose
// keys encode comparison operators via suffixes (_ne, _gt, _lt, _gte, _lte);
// unsuffixed keys test deep equality.
type FlowTrigger struct {
	EventType string         `json:"event_type"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// Flow is an event-triggered ordered step list.
type Flow struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Trigger   FlowTrigger `json:"trigger"`
	Steps     []Step      `json:"steps"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CreateFlow is the payload for creating a flow. Active defaults to true.
type CreateFlow struct {
	Name    string      `json:"name" validate:"required"`
	Trigger FlowTrigger `json:"trigger" validate:"required"`
	Steps   []Step      `json:"steps" validate:"required"`
	Active  *bool       `json:"active,omitempty"`
}

// UpdateFlow is the payload for a partial flow update.
type UpdateFlow struct {
	Name    *string      `json:"name,omitempty"`
	Trigger *FlowTrigger `json:"trigger,omitempty"`
	Steps   []Step       `json:"steps,omitempty"`
	Active  *bool        `json:"active,omitempty"`
}

// NewFlow builds a flow from a create payload.
func NewFlow(create CreateFlow) *Flow {
	active := true
	if create.Active != nil {
		active = *create.Active
	}
	now := time.Now().UTC()
	return &Flow{
		ID:        uuid.New(),
		Name:      create.Name,
		Trigger:   create.Trigger,
		Steps:     create.Steps,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
