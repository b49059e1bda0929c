package api

import (
	"net/http"
	"time"

	"github.com/orchehq/orchepy/model"
)

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	flows, err := s.deps.Flows.List(r.Context(), activeOnly)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateFlow
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Trigger.EventType == "" {
		writeError(w, http.StatusBadRequest, "trigger.event_type is required")
		return
	}

	flow := model.NewFlow(payload)
	if err := s.deps.Flows.Create(r.Context(), flow); err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Info("Created flow", "flow_id", flow.ID, "name", flow.Name)
	writeJSON(w, http.StatusCreated, flow)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	flow, err := s.deps.Flows.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	var payload model.UpdateFlow
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	flow, err := s.deps.Flows.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if payload.Name != nil {
		flow.Name = *payload.Name
	}
	if payload.Trigger != nil {
		flow.Trigger = *payload.Trigger
	}
	if payload.Steps != nil {
		flow.Steps = payload.Steps
	}
	if payload.Active != nil {
		flow.Active = *payload.Active
	}
	flow.UpdatedAt = time.Now().UTC()

	if err := s.deps.Flows.Update(r.Context(), flow); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Flows.Delete(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
