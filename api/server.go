// Package api exposes the HTTP surface: workflow, case, flow, event and
// execution endpoints plus health, metrics and the dashboard.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/service"
)

// WorkflowStore is the workflow persistence the handlers need.
type WorkflowStore interface {
	Create(ctx context.Context, w *model.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error)
	List(ctx context.Context, activeOnly bool) ([]*model.Workflow, error)
	Update(ctx context.Context, w *model.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CaseReader serves case queries.
type CaseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Case, error)
	List(ctx context.Context, filter model.CaseFilter) ([]*model.Case, error)
	ListHistory(ctx context.Context, caseID uuid.UUID) ([]*model.CaseHistory, error)
	UpdateData(ctx context.Context, id uuid.UUID, data map[string]any) error
}

// CaseOrchestrator runs case creation and transitions with their side
// effects.
type CaseOrchestrator interface {
	Create(ctx context.Context, payload model.CreateCase) (*model.Case, error)
	Move(ctx context.Context, caseID uuid.UUID, payload model.MoveCase) (*service.MoveResult, error)
	Advance(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*service.MoveResult, error)
	Retreat(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*service.MoveResult, error)
	SetStatus(ctx context.Context, caseID uuid.UUID, status model.CaseStatus) (*model.Case, error)
}

// EventSubmitter accepts events into the flow pipeline.
type EventSubmitter interface {
	Submit(ctx context.Context, payload model.CreateEvent) (*service.SubmitResult, error)
}

// EventReader serves event queries.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error)
	List(ctx context.Context, eventType string, limit int64) ([]*model.Event, error)
}

// FlowStore is the flow persistence the handlers need.
type FlowStore interface {
	Create(ctx context.Context, f *model.Flow) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Flow, error)
	List(ctx context.Context, activeOnly bool) ([]*model.Flow, error)
	Update(ctx context.Context, f *model.Flow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionReader serves execution queries.
type ExecutionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Execution, error)
	List(ctx context.Context, filter model.ExecutionFilter) ([]*model.Execution, error)
}

// Pinger reports storage liveness for health checks.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Workflows  WorkflowStore
	Cases      CaseReader
	CaseOps    CaseOrchestrator
	Events     EventSubmitter
	EventStore EventReader
	Flows      FlowStore
	Executions ExecutionReader
	DB         Pinger
}

// Server is the HTTP layer.
type Server struct {
	deps      Deps
	router    chi.Router
	validate  *validator.Validate
	logger    *slog.Logger
	whitelist *Whitelist
}

// NewServer builds the router. whitelist may be nil to disable IP filtering.
func NewServer(deps Deps, whitelist *Whitelist, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:      deps,
		validate:  validator.New(),
		logger:    logger,
		whitelist: whitelist,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	if s.whitelist != nil {
		r.Use(s.whitelist.Middleware)
	}

	r.Get("/", s.handleDashboard)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.handleListWorkflows)
		r.Post("/", s.handleCreateWorkflow)
		r.Get("/{id}", s.handleGetWorkflow)
		r.Put("/{id}", s.handleUpdateWorkflow)
		r.Delete("/{id}", s.handleDeleteWorkflow)
	})

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", s.handleListCases)
		r.Post("/", s.handleCreateCase)
		r.Get("/{id}", s.handleGetCase)
		r.Patch("/{id}/data", s.handleUpdateCaseData)
		r.Put("/{id}/move", s.handleMoveCase)
		r.Put("/{id}/advance", s.handleAdvanceCase)
		r.Put("/{id}/retreat", s.handleRetreatCase)
		r.Put("/{id}/status", s.handleSetCaseStatus)
		r.Get("/{id}/history", s.handleCaseHistory)
	})

	r.Route("/events", func(r chi.Router) {
		r.Post("/", s.handleCreateEvent)
		r.Get("/", s.handleListEvents)
		r.Get("/{id}", s.handleGetEvent)
	})

	r.Route("/flows", func(r chi.Router) {
		r.Get("/", s.handleListFlows)
		r.Post("/", s.handleCreateFlow)
		r.Get("/{id}", s.handleGetFlow)
		r.Put("/{id}", s.handleUpdateFlow)
		r.Delete("/{id}", s.handleDeleteFlow)
	})

	r.Route("/executions", func(r chi.Router) {
		r.Get("/", s.handleListExecutions)
		r.Get("/{id}", s.handleGetExecution)
		r.Post("/{id}/retry", s.handleRetryExecution)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// urlID parses the {id} route parameter. A false return means the error
// response was already written.
func urlID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
