package model

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of a flow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionRetrying  ExecutionStatus = "retrying"
)

// StepExecutionStatus is the state of a single step inside an execution.
type StepExecutionStatus string

const (
	StepRunning   StepExecutionStatus = "running"
	StepCompleted StepExecutionStatus = "completed"
	StepFailed    StepExecutionStatus = "failed"
	StepSkipped   StepExecutionStatus = "skipped"
)

// StepStatus records the outcome of one step. Attempts is always 1 from the
// execution's point of view; the retry layer hides its internal attempts.
type StepStatus struct {
	Status      StepExecutionStatus `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Attempts    int                 `json:"attempts"`
	Response    any                 `json:"response,omitempty"`
	Error       *string             `json:"error,omitempty"`
}

// Execution is the recorded outcome of running one flow for one event. It is
// persisted once, after the flow finishes.
type Execution struct {
	ID          uuid.UUID             `json:"id"`
	FlowID      uuid.UUID             `json:"flow_id"`
	EventID     uuid.UUID             `json:"event_id"`
	Status      ExecutionStatus       `json:"status"`
	CurrentStep *string               `json:"current_step,omitempty"`
	StepsStatus map[string]StepStatus `json:"steps_status"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       *string               `json:"error,omitempty"`
}

// NewExecution builds a pending execution for a (flow, event) pair.
func NewExecution(flowID, eventID uuid.UUID) *Execution {
	return &Execution{
		ID:          uuid.New(),
		FlowID:      flowID,
		EventID:     eventID,
		Status:      ExecutionPending,
		StepsStatus: map[string]StepStatus{},
		StartedAt:   time.Now().UTC(),
	}
}

// ExecutionFilter narrows execution listings.
type ExecutionFilter struct {
	Status *ExecutionStatus
	FlowID *uuid.UUID
	Limit  int64
}
