package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orchehq/orchepy/engine"
	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/store"
)

// Sentinel errors mapped onto API responses.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrCaseNotFound     = errors.New("case not found")
)

// WorkflowSource is the workflow lookup the case service needs.
type WorkflowSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error)
}

// CaseRepository is the case persistence the case service needs.
type CaseRepository interface {
	Create(ctx context.Context, c *model.Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Case, error)
	UpdatePhase(ctx context.Context, id uuid.UUID, currentPhase string, previousPhase *string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.CaseStatus) error
	CreateHistory(ctx context.Context, h *model.CaseHistory) error
	ApplyModifications(ctx context.Context, caseID uuid.UUID, workflow *model.Workflow, mods []model.CaseModification, label string) error
}

// EventSubmitter feeds internal lifecycle events back into the flow pipeline.
type EventSubmitter interface {
	Submit(ctx context.Context, payload model.CreateEvent) (*SubmitResult, error)
}

// WebhookDeliverer posts case notifications to workflow webhook URLs.
type WebhookDeliverer interface {
	SendCaseMovedWithRetry(ctx context.Context, webhookURL string, c *model.Case, fromPhase *string, maxAttempts int) error
}

// CaseServiceOptions toggles the side effects of case transitions.
type CaseServiceOptions struct {
	WebhookOnCaseCreate bool
	WebhookOnCaseMove   bool
}

// MoveResult is the outcome of a move request. Moved is false when the case
// was already in the target phase.
type MoveResult struct {
	Case  *model.Case
	Moved bool
}

// CaseService orchestrates case creation and phase transitions: state change,
// history, phase automations, internal lifecycle events and workflow
// webhooks.
type CaseService struct {
	workflows WorkflowSource
	cases     CaseRepository
	automator *engine.AutomationExecutor
	events    EventSubmitter
	webhooks  WebhookDeliverer
	opts      CaseServiceOptions
	metrics   *Metrics
	logger    *slog.Logger
}

// NewCaseService wires the case orchestrator.
func NewCaseService(workflows WorkflowSource, cases CaseRepository, automator *engine.AutomationExecutor, events EventSubmitter, webhooks WebhookDeliverer, opts CaseServiceOptions, metrics *Metrics, logger *slog.Logger) *CaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseService{
		workflows: workflows,
		cases:     cases,
		automator: automator,
		events:    events,
		webhooks:  webhooks,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create creates a case in the workflow's initial phase (or the requested
// one), runs the on_enter automations for that phase and fires the
// case.created side effects.
func (s *CaseService) Create(ctx context.Context, payload model.CreateCase) (*model.Case, error) {
	workflow, err := s.workflows.GetActiveByID(ctx, payload.WorkflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching workflow: %w", err)
	}

	initialPhase := payload.InitialPhase
	if initialPhase == "" {
		initialPhase = workflow.InitialPhase
	}
	if !workflow.HasPhase(initialPhase) {
		return nil, &model.ValidationError{
			Field:   "initial_phase",
			Message: fmt.Sprintf("phase %q not found in workflow", initialPhase),
		}
	}

	c := model.NewCase(payload.WorkflowID, initialPhase, payload.Data, payload.Metadata)
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating case: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CasesCreated.Inc()
	}
	s.logger.Info("Created case", "case_id", c.ID, "phase", c.CurrentPhase)

	reason := "Case created"
	triggeredBy := "system"
	if err := s.cases.CreateHistory(ctx, model.NewCaseHistory(c.ID, nil, initialPhase, &reason, &triggeredBy)); err != nil {
		s.logger.Error("Failed to record creation history", "case_id", c.ID, "error", err)
	}

	c, err = s.runAutomations(ctx, workflow, c, nil, model.TriggerOnEnter, c.CurrentPhase)
	if err != nil {
		return nil, err
	}

	s.fireSideEffects(ctx, workflow, c, nil, "case.created", s.opts.WebhookOnCaseCreate)
	return c, nil
}

// Move transitions a case to another phase of its workflow, running the old
// phase's on_exit automations and the new phase's on_enter automations before
// the case.moved side effects fire.
func (s *CaseService) Move(ctx context.Context, caseID uuid.UUID, payload model.MoveCase) (*MoveResult, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching case: %w", err)
	}

	workflow, err := s.workflows.GetByID(ctx, c.WorkflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching workflow: %w", err)
	}

	if !workflow.HasPhase(payload.ToPhase) {
		return nil, &model.ValidationError{
			Field:   "to_phase",
			Message: fmt.Sprintf("phase %q not found in workflow", payload.ToPhase),
		}
	}

	if c.CurrentPhase == payload.ToPhase {
		return &MoveResult{Case: c, Moved: false}, nil
	}

	fromPhase := c.CurrentPhase
	c.MoveToPhase(payload.ToPhase)

	if err := s.cases.UpdatePhase(ctx, caseID, c.CurrentPhase, c.PreviousPhase); err != nil {
		return nil, fmt.Errorf("moving case: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CaseTransitions.Inc()
	}
	s.logger.Info("Moved case", "case_id", caseID, "from", fromPhase, "to", c.CurrentPhase)

	if err := s.cases.CreateHistory(ctx, model.NewCaseHistory(caseID, &fromPhase, payload.ToPhase, payload.Reason, payload.TriggeredBy)); err != nil {
		s.logger.Error("Failed to record transition history", "case_id", caseID, "error", err)
	}

	c, err = s.runAutomations(ctx, workflow, c, &fromPhase, model.TriggerOnExit, fromPhase)
	if err != nil {
		return nil, err
	}
	c, err = s.runAutomations(ctx, workflow, c, &fromPhase, model.TriggerOnEnter, c.CurrentPhase)
	if err != nil {
		return nil, err
	}

	s.fireSideEffects(ctx, workflow, c, &fromPhase, "case.moved", s.opts.WebhookOnCaseMove)
	return &MoveResult{Case: c, Moved: true}, nil
}

// Advance moves the case to the next phase of its workflow's phase list.
func (s *CaseService) Advance(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*MoveResult, error) {
	return s.moveAdjacent(ctx, caseID, reason, triggeredBy, func(w *model.Workflow, current string) (string, bool) {
		return w.NextPhase(current)
	})
}

// Retreat moves the case back to the previous phase of the phase list.
func (s *CaseService) Retreat(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*MoveResult, error) {
	return s.moveAdjacent(ctx, caseID, reason, triggeredBy, func(w *model.Workflow, current string) (string, bool) {
		return w.PreviousPhase(current)
	})
}

func (s *CaseService) moveAdjacent(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string, pick func(*model.Workflow, string) (string, bool)) (*MoveResult, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching case: %w", err)
	}

	workflow, err := s.workflows.GetByID(ctx, c.WorkflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching workflow: %w", err)
	}

	target, ok := pick(workflow, c.CurrentPhase)
	if !ok {
		return nil, &model.ValidationError{
			Field:   "to_phase",
			Message: fmt.Sprintf("no adjacent phase from %q", c.CurrentPhase),
		}
	}

	return s.Move(ctx, caseID, model.MoveCase{ToPhase: target, Reason: reason, TriggeredBy: triggeredBy})
}

// SetStatus changes the lifecycle status of a case.
func (s *CaseService) SetStatus(ctx context.Context, caseID uuid.UUID, status model.CaseStatus) (*model.Case, error) {
	if !status.Valid() {
		return nil, &model.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if err := s.cases.UpdateStatus(ctx, caseID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("updating case status: %w", err)
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("refetching case: %w", err)
	}
	return c, nil
}

// runAutomations executes the (trigger, phase) automation batches and applies
// their queued modifications transactionally. A failed batch aborts the whole
// transition; applied modifications replace the in-memory case with a fresh
// read.
func (s *CaseService) runAutomations(ctx context.Context, workflow *model.Workflow, c *model.Case, fromPhase *string, trigger model.AutomationTrigger, phase string) (*model.Case, error) {
	if workflow.Automations == nil {
		return c, nil
	}

	var batches []model.PhaseAutomation
	if trigger == model.TriggerOnEnter {
		batches = workflow.Automations.OnEnter(phase)
	} else {
		batches = workflow.Automations.OnExit(phase)
	}
	if len(batches) == 0 {
		return c, nil
	}

	result, err := s.automator.ExecuteAutomations(ctx, batches, c, fromPhase)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.AutomationBatches.WithLabelValues(string(trigger), outcome).Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("executing %s automations: %w", trigger, err)
	}
	if len(result.Modifications) == 0 {
		return c, nil
	}

	if err := s.cases.ApplyModifications(ctx, c.ID, workflow, result.Modifications, string(trigger)); err != nil {
		return nil, fmt.Errorf("applying %s automation modifications: %w", trigger, err)
	}

	updated, err := s.cases.GetByID(ctx, c.ID)
	if err != nil {
		s.logger.Error("Failed to refetch case after automations", "case_id", c.ID, "error", err)
		return c, nil
	}
	return updated, nil
}

// fireSideEffects submits the internal lifecycle event and delivers the
// workflow webhook, both asynchronously. Neither can fail the API request
// that triggered them.
func (s *CaseService) fireSideEffects(ctx context.Context, workflow *model.Workflow, c *model.Case, fromPhase *string, eventType string, webhookEnabled bool) {
	bg := context.WithoutCancel(ctx)

	var fromValue any
	if fromPhase != nil {
		fromValue = *fromPhase
	}

	go func() {
		s.logger.Info("Submitting internal event", "event_type", eventType, "case_id", c.ID)
		_, err := s.events.Submit(bg, model.CreateEvent{
			EventType: eventType,
			Data: map[string]any{
				"case_id":     c.ID.String(),
				"workflow_id": c.WorkflowID.String(),
				"to_phase":    c.CurrentPhase,
				"from_phase":  fromValue,
				"case_data":   c.Data,
			},
			Metadata: c.Metadata,
		})
		if err != nil {
			s.logger.Error("Failed to submit internal event",
				"event_type", eventType, "case_id", c.ID, "error", err)
		}
	}()

	if !webhookEnabled || workflow.WebhookURL == "" {
		return
	}

	go func() {
		err := s.webhooks.SendCaseMovedWithRetry(bg, workflow.WebhookURL, c, fromPhase, 3)
		if s.metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			s.metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
		}
		if err != nil {
			s.logger.Error("Failed to deliver case webhook", "case_id", c.ID, "error", err)
		}
	}()
}
