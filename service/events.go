package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orchehq/orchepy/engine"
	"github.com/orchehq/orchepy/model"
)

// EventStore is the event persistence the service needs.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
}

// FlowSource lists the flows eligible for matching.
type FlowSource interface {
	ListActive(ctx context.Context) ([]model.Flow, error)
}

// ExecutionSink records finished executions.
type ExecutionSink interface {
	Create(ctx context.Context, e *model.Execution) error
}

// SubmitResult summarizes one event submission.
type SubmitResult struct {
	EventID      uuid.UUID   `json:"event_id"`
	Executions   []uuid.UUID `json:"executions"`
	MatchedFlows int         `json:"matched_flows"`
}

// EventService persists events, matches them to flows and runs the matches.
type EventService struct {
	events     EventStore
	flows      FlowSource
	executions ExecutionSink
	executor   *engine.FlowExecutor
	metrics    *Metrics
	logger     *slog.Logger
}

// NewEventService builds the event submission pipeline.
func NewEventService(events EventStore, flows FlowSource, executions ExecutionSink, executor *engine.FlowExecutor, metrics *Metrics, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		events:     events,
		flows:      flows,
		executions: executions,
		executor:   executor,
		metrics:    metrics,
		logger:     logger,
	}
}

// Submit persists the event, runs every matching active flow and records each
// execution. One flow failing does not stop the others; an event that matches
// nothing still succeeds.
func (s *EventService) Submit(ctx context.Context, payload model.CreateEvent) (*SubmitResult, error) {
	event := model.NewEvent(payload)

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("saving event: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EventsReceived.Inc()
	}

	flows, err := s.flows.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading flows: %w", err)
	}

	matched := engine.MatchFlows(event, flows)
	s.logger.Info("Matched flows for event",
		"event_id", event.ID, "event_type", event.EventType, "matched", len(matched))
	if s.metrics != nil {
		s.metrics.FlowsMatched.Add(float64(len(matched)))
	}

	result := &SubmitResult{
		EventID:      event.ID,
		Executions:   []uuid.UUID{},
		MatchedFlows: len(matched),
	}

	for i := range matched {
		flow := &matched[i]
		s.logger.Info("Triggering flow", "flow", flow.Name, "event_id", event.ID)

		started := time.Now()
		execution := s.executor.Execute(ctx, flow, event)
		if s.metrics != nil {
			s.metrics.Executions.WithLabelValues(string(execution.Status)).Inc()
			s.metrics.ExecutionDuration.Observe(time.Since(started).Seconds())
		}

		result.Executions = append(result.Executions, execution.ID)

		if err := s.executions.Create(ctx, execution); err != nil {
			s.logger.Error("Failed to save execution",
				"execution_id", execution.ID, "flow", flow.Name, "error", err)
		}
	}

	return result, nil
}
