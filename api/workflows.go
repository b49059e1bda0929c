package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/service"
	"github.com/orchehq/orchepy/store"
)

// respondError maps domain errors onto HTTP responses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, service.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "case not found")
	default:
		s.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	workflows, err := s.deps.Workflows.List(r.Context(), activeOnly)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateWorkflow
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow, err := model.NewWorkflow(payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.deps.Workflows.Create(r.Context(), workflow); err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Info("Created workflow", "workflow_id", workflow.ID, "name", workflow.Name)
	writeJSON(w, http.StatusCreated, workflow)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	workflow, err := s.deps.Workflows.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflow)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	var payload model.UpdateWorkflow
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	workflow, err := s.deps.Workflows.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	applyWorkflowUpdate(workflow, payload)
	if !workflow.HasPhase(workflow.InitialPhase) {
		writeError(w, http.StatusBadRequest, "initial phase must be in phases list")
		return
	}

	if err := s.deps.Workflows.Update(r.Context(), workflow); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflow)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Workflows.Delete(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// applyWorkflowUpdate overlays the non-nil fields of a partial update.
func applyWorkflowUpdate(workflow *model.Workflow, payload model.UpdateWorkflow) {
	if payload.Name != nil {
		workflow.Name = *payload.Name
	}
	if payload.Phases != nil {
		workflow.Phases = payload.Phases
	}
	if payload.InitialPhase != nil {
		workflow.InitialPhase = *payload.InitialPhase
	}
	if payload.WebhookURL != nil {
		workflow.WebhookURL = *payload.WebhookURL
	}
	if payload.Description != nil {
		workflow.Description = *payload.Description
	}
	if payload.Automations != nil {
		workflow.Automations = payload.Automations
	}
	if payload.SLAConfig != nil {
		workflow.SLAConfig = payload.SLAConfig
	}
	if payload.Active != nil {
		workflow.Active = *payload.Active
	}
	workflow.UpdatedAt = time.Now().UTC()
}
