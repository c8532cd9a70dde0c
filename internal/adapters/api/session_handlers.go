package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.sessions.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionViews(bindings))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	binding, err := s.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(binding))
}

func (s *Server) handleShipSessions(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.sessions.ListForShip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionViews(bindings))
}

func (s *Server) handleExtendSessionTTL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TTL int `json:"ttl" validate:"required,gt=0"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ttl must be positive")
		return
	}

	binding, err := s.sessions.ExtendTTL(r.Context(), mux.Vars(r)["id"], req.TTL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(binding))
}

func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Terminate(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := harbor.ExecutionRecordFilter{
		ExecType:    query.Get("exec_type"),
		TagContains: query.Get("tags"),
	}
	filter.SuccessOnly, _ = strconv.ParseBool(query.Get("success_only"))
	filter.HasNotes, _ = strconv.ParseBool(query.Get("has_notes"))
	filter.HasDescription, _ = strconv.ParseBool(query.Get("has_description"))
	filter.Limit, _ = strconv.Atoi(query.Get("limit"))
	filter.Offset, _ = strconv.Atoi(query.Get("offset"))

	records, total, err := s.sessions.History(r.Context(), mux.Vars(r)["id"], filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryPageView(records, total))
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	record, err := s.sessions.HistoryEntry(r.Context(), vars["id"], vars["exec_id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEntryView(record))
}

func (s *Server) handleHistoryLast(w http.ResponseWriter, r *http.Request) {
	record, err := s.sessions.LastExecution(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("exec_type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEntryView(record))
}

func (s *Server) handleAnnotateHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description *string `json:"description"`
		Tags        *string `json:"tags"`
		Notes       *string `json:"notes"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	vars := mux.Vars(r)
	record, err := s.sessions.Annotate(r.Context(), vars["id"], vars["exec_id"], req.Description, req.Tags, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEntryView(record))
}
