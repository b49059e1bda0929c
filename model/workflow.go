// Package model defines the domain types shared by the engine, stores and
// HTTP surface: workflows, cases, automations, flows, events and executions.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Workflow defines the phase universe its cases move through, plus the
// automations and SLAs attached to those phases.
type Workflow struct {
	ID           uuid.UUID            `json:"id"`
	Name         string               `json:"name"`
	Phases       []string             `json:"phases"`
	InitialPhase string               `json:"initial_phase"`
	WebhookURL   string               `json:"webhook_url,omitempty"`
	Description  string               `json:"description,omitempty"`
	Active       bool                 `json:"active"`
	Automations  *WorkflowAutomations `json:"automations,omitempty"`
	SLAConfig    SLAConfig            `json:"sla_config,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// SLAConfig maps a phase name to its SLA.
type SLAConfig map[string]PhaseSLA

// PhaseSLA is the time budget for a single phase.
type PhaseSLA struct {
	Hours int `json:"hours"`
}

// CreateWorkflow is the payload for creating a workflow.
type CreateWorkflow struct {
	Name         string               `json:"name" validate:"required"`
	Phases       []string             `json:"phases" validate:"required,min=1,dive,required"`
	InitialPhase string               `json:"initial_phase" validate:"required"`
	WebhookURL   string               `json:"webhook_url,omitempty"`
	Description  string               `json:"description,omitempty"`
	Automations  *WorkflowAutomations `json:"automations,omitempty"`
	SLAConfig    SLAConfig            `json:"sla_config,omitempty"`
	Active       *bool                `json:"active,omitempty"`
}

// UpdateWorkflow is the payload for a partial workflow update. Nil fields are
// left unchanged.
type UpdateWorkflow struct {
	Name         *string              `json:"name,omitempty"`
	Phases       []string             `json:"phases,omitempty"`
	InitialPhase *string              `json:"initial_phase,omitempty"`
	WebhookURL   *string              `json:"webhook_url,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Automations  *WorkflowAutomations `json:"automations,omitempty"`
	SLAConfig    SLAConfig            `json:"sla_config,omitempty"`
	Active       *bool                `json:"active,omitempty"`
}

// NewWorkflow builds a workflow from a create payload, enforcing that the
// phase list is non-empty and contains the initial phase.
func NewWorkflow(create CreateWorkflow) (*Workflow, error) {
	if len(create.Phases) == 0 {
		return nil, &ValidationError{Field: "phases", Message: "phases list cannot be empty"}
	}
	if !containsPhase(create.Phases, create.InitialPhase) {
		return nil, &ValidationError{
			Field:   "initial_phase",
			Message: fmt.Sprintf("initial phase %q must be in phases list", create.InitialPhase),
		}
	}

	active := true
	if create.Active != nil {
		active = *create.Active
	}

	now := time.Now().UTC()
	return &Workflow{
		ID:           uuid.New(),
		Name:         create.Name,
		Phases:       create.Phases,
		InitialPhase: create.InitialPhase,
		WebhookURL:   create.WebhookURL,
		Description:  create.Description,
		Active:       active,
		Automations:  create.Automations,
		SLAConfig:    create.SLAConfig,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPhase reports whether the workflow defines the named phase.
func (w *Workflow) HasPhase(phase string) bool {
	return containsPhase(w.Phases, phase)
}

// PhaseIndex returns the position of the named phase, or -1.
func (w *Workflow) PhaseIndex(phase string) int {
	for i, p := range w.Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// NextPhase returns the phase after the given one, if any.
func (w *Workflow) NextPhase(current string) (string, bool) {
	idx := w.PhaseIndex(current)
	if idx < 0 || idx+1 >= len(w.Phases) {
		return "", false
	}
	return w.Phases[idx+1], true
}

// PreviousPhase returns the phase before the given one, if any.
func (w *Workflow) PreviousPhase(current string) (string, bool) {
	idx := w.PhaseIndex(current)
	if idx <= 0 {
		return "", false
	}
	return w.Phases[idx-1], true
}

func containsPhase(phases []string, phase string) bool {
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}
