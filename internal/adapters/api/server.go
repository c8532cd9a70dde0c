package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/application/session"
	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

const serviceName = "harbor"

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// Server is the public HTTP API over the control plane.
type Server struct {
	cfg      *config.Config
	ships    *ship.Service
	sessions *session.Service
	bindings harbor.BindingRepository
	validate *validator.Validate
	log      *logrus.Logger
	httpSrv  *http.Server
}

func NewServer(
	cfg *config.Config,
	shipService *ship.Service,
	sessionService *session.Service,
	bindings harbor.BindingRepository,
	log *logrus.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		ships:    shipService,
		sessions: sessionService,
		bindings: bindings,
		validate: validator.New(),
		log:      log,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stat", s.handleStat).Methods(http.MethodGet)

	// Terminal authenticates via query token inside the handler so it can
	// answer with a websocket close code instead of a plain 401.
	r.HandleFunc("/ship/{id}/term", s.handleTerminal).Methods(http.MethodGet)

	if s.cfg.Metrics.Enabled && metrics.IsEnabled() {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Authenticated routes
	auth := r.NewRoute().Subrouter()
	auth.Use(authMiddleware(s.cfg.Server.AccessToken))

	auth.HandleFunc("/stat/overview", s.handleOverview).Methods(http.MethodGet)
	auth.HandleFunc("/ships", s.handleListShips).Methods(http.MethodGet)
	auth.HandleFunc("/ship", s.handleCreateShip).Methods(http.MethodPost)
	auth.HandleFunc("/ship/logs/{id}", s.handleShipLogs).Methods(http.MethodGet)
	auth.HandleFunc("/ship/{id}", s.handleGetShip).Methods(http.MethodGet)
	auth.HandleFunc("/ship/{id}", s.handleDeleteShip).Methods(http.MethodDelete)
	auth.HandleFunc("/ship/{id}/permanent", s.handleDeleteShipPermanent).Methods(http.MethodDelete)
	auth.HandleFunc("/ship/{id}/exec", s.handleExec).Methods(http.MethodPost)
	auth.HandleFunc("/ship/{id}/extend-ttl", s.handleExtendTTL).Methods(http.MethodPost)
	auth.HandleFunc("/ship/{id}/start", s.handleStartShip).Methods(http.MethodPost)
	auth.HandleFunc("/ship/{id}/upload", s.handleUpload).Methods(http.MethodPost)
	auth.HandleFunc("/ship/{id}/download", s.handleDownload).Methods(http.MethodGet)
	auth.HandleFunc("/ship/{id}/sessions", s.handleShipSessions).Methods(http.MethodGet)

	auth.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{id}", s.handleTerminateSession).Methods(http.MethodDelete)
	auth.HandleFunc("/sessions/{id}/extend-ttl", s.handleExtendSessionTTL).Methods(http.MethodPost)
	auth.HandleFunc("/sessions/{id}/history", s.handleHistory).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{id}/history/last", s.handleHistoryLast).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{id}/history/{exec_id}", s.handleHistoryEntry).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{id}/history/{exec_id}", s.handleAnnotateHistory).Methods(http.MethodPatch)

	if s.cfg.Server.Debug {
		r.Use(mux.MiddlewareFunc(requestLogMiddleware(s.log)))
	}
	return r
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.log.WithField("addr", addr).Info("api server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeStrict parses a JSON body, rejecting unknown fields.
func decodeStrict(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
