package model

import (
	"time"

	"github.com/google/uuid"
)

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseActive    CaseStatus = "active"
	CaseCompleted CaseStatus = "completed"
	CaseFailed    CaseStatus = "failed"
	CasePaused    CaseStatus = "paused"
)

// Valid reports whether s is a known case status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseActive, CaseCompleted, CaseFailed, CasePaused:
		return true
	}
	return false
}

// Case is a workflow instance: arbitrary JSON data plus a current phase.
type Case struct {
	ID             uuid.UUID      `json:"id"`
	WorkflowID     uuid.UUID      `json:"workflow_id"`
	CurrentPhase   string         `json:"current_phase"`
	PreviousPhase  *string        `json:"previous_phase"`
	Data           map[string]any `json:"data"`
	Status         CaseStatus     `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	PhaseEnteredAt time.Time      `json:"phase_entered_at"`
}

// NewCase builds an active case in the given initial phase.
func NewCase(workflowID uuid.UUID, initialPhase string, data, metadata map[string]any) *Case {
	now := time.Now().UTC()
	if data == nil {
		data = map[string]any{}
	}
	return &Case{
		ID:             uuid.New(),
		WorkflowID:     workflowID,
		CurrentPhase:   initialPhase,
		Data:           data,
		Status:         CaseActive,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		PhaseEnteredAt: now,
	}
}

// MoveToPhase records a phase transition on the case, tracking the previous
// phase and refreshing the transition timestamps.
func (c *Case) MoveToPhase(phase string) {
	prev := c.CurrentPhase
	c.PreviousPhase = &prev
	c.CurrentPhase = phase
	now := time.Now().UTC()
	c.UpdatedAt = now
	c.PhaseEnteredAt = now
}

// MergeData shallow-merges the given keys into the case data.
func (c *Case) MergeData(data map[string]any) {
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	for k, v := range data {
		c.Data[k] = v
	}
	c.UpdatedAt = time.Now().UTC()
}

// Complete marks the case completed.
func (c *Case) Complete() {
	now := time.Now().UTC()
	c.Status = CaseCompleted
	c.CompletedAt = &now
	c.UpdatedAt = now
}

// Fail marks the case failed.
func (c *Case) Fail() {
	now := time.Now().UTC()
	c.Status = CaseFailed
	c.CompletedAt = &now
	c.UpdatedAt = now
}

// CaseHistory is one append-only transition record. Creation rows have a nil
// FromPhase.
type CaseHistory struct {
	ID             uuid.UUID `json:"id"`
	CaseID         uuid.UUID `json:"case_id"`
	FromPhase      *string   `json:"from_phase"`
	ToPhase        string    `json:"to_phase"`
	Reason         *string   `json:"reason,omitempty"`
	TriggeredBy    *string   `json:"triggered_by,omitempty"`
	TransitionedAt time.Time `json:"transitioned_at"`
}

// NewCaseHistory builds a history row for one transition.
func NewCaseHistory(caseID uuid.UUID, fromPhase *string, toPhase string, reason, triggeredBy *string) *CaseHistory {
	return &CaseHistory{
		ID:             uuid.New(),
		CaseID:         caseID,
		FromPhase:      fromPhase,
		ToPhase:        toPhase,
		Reason:         reason,
		TriggeredBy:    triggeredBy,
		TransitionedAt: time.Now().UTC(),
	}
}

// CreateCase is the payload for creating a case.
type CreateCase struct {
	WorkflowID   uuid.UUID      `json:"workflow_id" validate:"required"`
	Data         map[string]any `json:"data"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	InitialPhase string         `json:"initial_phase,omitempty"`
}

// MoveCase is the payload for moving a case to another phase.
type MoveCase struct {
	ToPhase     string  `json:"to_phase" validate:"required"`
	Reason      *string `json:"reason,omitempty"`
	TriggeredBy *string `json:"triggered_by,omitempty"`
}

// UpdateCaseData replaces the case data document.
type UpdateCaseData struct {
	Data map[string]any `json:"data" validate:"required"`
}

// CaseFilter narrows case listings.
type CaseFilter struct {
	WorkflowID   *uuid.UUID
	CurrentPhase *string
	Status       *CaseStatus
	Limit        int64
	Offset       int64
}
