package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

const sessionHeader = "X-SESSION-ID"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &StatView{
		Service: serviceName,
		Version: Version,
		Status:  "ok",
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ships, err := s.ships.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	bindings, err := s.bindings.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	overview := &OverviewView{
		Service: serviceName,
		Version: Version,
		Status:  "ok",
	}
	for _, sh := range ships {
		overview.Ships.Total++
		switch sh.Status {
		case harbor.StatusRunning:
			overview.Ships.Running++
		case harbor.StatusStopped:
			overview.Ships.Stopped++
		case harbor.StatusCreating:
			overview.Ships.Creating++
		}
	}
	for _, b := range bindings {
		overview.Sessions.Total++
		if v := toSessionView(b); v.IsActive {
			overview.Sessions.Active++
		}
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleListShips(w http.ResponseWriter, r *http.Request) {
	ships, err := s.ships.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipViews(ships))
}

func (s *Server) handleCreateShip(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}

	var req ship.CreateShipRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resolved, err := s.ships.ResolveShip(r.Context(), sessionID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipView(resolved))
}

func (s *Server) handleGetShip(w http.ResponseWriter, r *http.Request) {
	shipID := mux.Vars(r)["id"]
	resolved, err := s.ships.GetShip(r.Context(), "", shipID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipView(resolved))
}

func (s *Server) handleDeleteShip(w http.ResponseWriter, r *http.Request) {
	if err := s.ships.DeleteShip(r.Context(), mux.Vars(r)["id"], false); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteShipPermanent(w http.ResponseWriter, r *http.Request) {
	if err := s.ships.DeleteShip(r.Context(), mux.Vars(r)["id"], true); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}

	var req ship.ExecRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := s.ships.Execute(r.Context(), sessionID, mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShipLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.ships.GetLogs(r.Context(), "", mux.Vars(r)["id"])
	if err != nil && !errors.Is(err, harbor.ErrShipNotRunning) {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": logs})
}

func (s *Server) handleExtendTTL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TTL int `json:"ttl" validate:"required,gt=0"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resolved, err := s.ships.ExtendTTL(r.Context(), mux.Vars(r)["id"], req.TTL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipView(resolved))
}

func (s *Server) handleStartShip(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}

	var req struct {
		TTL int `json:"ttl" validate:"omitempty,gt=0"`
	}
	if r.ContentLength > 0 {
		if err := decodeStrict(r, &req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
			return
		}
		if err := s.validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	resolved, err := s.ships.StartShip(r.Context(), sessionID, mux.Vars(r)["id"], req.TTL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipView(resolved))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}

	maxSize := s.cfg.Ship.MaxUploadSize
	if r.ContentLength > maxSize {
		writeServiceError(w, harbor.ErrUploadTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeServiceError(w, harbor.ErrUploadTooLarge)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	filePath := r.FormValue("file_path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "missing file_path field")
		return
	}

	resp, err := s.ships.Upload(r.Context(), sessionID, mux.Vars(r)["id"], filePath, header.Filename, header.Size, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}
	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "missing file_path parameter")
		return
	}

	data, downstream, err := s.ships.Download(r.Context(), sessionID, mux.Vars(r)["id"], filePath)
	if err != nil {
		// Pass missing-file and path-violation answers through untouched.
		if downstream == http.StatusNotFound || downstream == http.StatusForbidden {
			writeError(w, downstream, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filePath))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
