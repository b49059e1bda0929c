package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/orchehq/orchepy/model"
)

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	var filter model.ExecutionFilter

	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := model.ExecutionStatus(v)
		filter.Status = &status
	}
	if v := q.Get("flow_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid flow_id")
			return
		}
		filter.FlowID = &id
	}
	filter.Limit = queryInt(q.Get("limit"))

	executions, err := s.deps.Executions.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	execution, err := s.deps.Executions.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func (s *Server) handleRetryExecution(w http.ResponseWriter, r *http.Request) {
	if _, ok := urlID(w, r); !ok {
		return
	}
	writeError(w, http.StatusNotImplemented, "execution retry is not implemented")
}
