package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/service"
)

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	var filter model.CaseFilter

	q := r.URL.Query()
	if v := q.Get("workflow_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &id
	}
	if v := q.Get("current_phase"); v != "" {
		filter.CurrentPhase = &v
	}
	if v := q.Get("status"); v != "" {
		status := model.CaseStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &status
	}
	filter.Limit = queryInt(q.Get("limit"))
	filter.Offset = queryInt(q.Get("offset"))

	cases, err := s.deps.Cases.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateCase
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.CaseOps.Create(r.Context(), payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	c, err := s.deps.Cases.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCaseData(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	var payload model.UpdateCaseData
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Cases.UpdateData(r.Context(), id, payload.Data); err != nil {
		s.respondError(w, err)
		return
	}
	c, err := s.deps.Cases.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleMoveCase(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	var payload model.MoveCase
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.CaseOps.Move(r.Context(), id, payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeMoveResult(w, result)
}

func (s *Server) handleAdvanceCase(w http.ResponseWriter, r *http.Request) {
	s.handleAdjacentMove(w, r, s.deps.CaseOps.Advance)
}

func (s *Server) handleRetreatCase(w http.ResponseWriter, r *http.Request) {
	s.handleAdjacentMove(w, r, s.deps.CaseOps.Retreat)
}

type adjacentMovePayload struct {
	Reason      *string `json:"reason,omitempty"`
	TriggeredBy *string `json:"triggered_by,omitempty"`
}

func (s *Server) handleAdjacentMove(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*service.MoveResult, error)) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	var payload adjacentMovePayload
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	result, err := move(r.Context(), id, payload.Reason, payload.TriggeredBy)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeMoveResult(w, result)
}

type setCaseStatusPayload struct {
	Status model.CaseStatus `json:"status" validate:"required"`
}

func (s *Server) handleSetCaseStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	var payload setCaseStatusPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.CaseOps.SetStatus(r.Context(), id, payload.Status)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCaseHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	history, err := s.deps.Cases.ListHistory(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) writeMoveResult(w http.ResponseWriter, result *service.MoveResult) {
	if !result.Moved {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Case already in target phase",
			"case":    result.Case,
		})
		return
	}
	writeJSON(w, http.StatusOK, result.Case)
}

func queryInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
