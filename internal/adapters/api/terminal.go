package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/pkg/ids"
)

// Websocket close codes surfaced to terminal clients.
const (
	closeUnauthorized = 4001
	closeNoAccess     = 4003
	closeNotFound     = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The harbor fronts trusted agents; browser origin checks don't apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTerminal bridges a client websocket to the PTY stream inside a ship.
// Authentication runs after the upgrade so failures surface as websocket
// close codes rather than plain HTTP errors.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("terminal upgrade failed")
		return
	}
	defer conn.Close()

	query := r.URL.Query()
	token := query.Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Server.AccessToken)) != 1 {
		closeWith(conn, closeUnauthorized, "invalid access token")
		return
	}

	sessionID := query.Get("session_id")
	if sessionID == "" {
		closeWith(conn, closeNoAccess, "missing session_id")
		return
	}

	shipID := mux.Vars(r)["id"]
	ship, err := s.ships.GetShip(r.Context(), "", shipID)
	if err != nil {
		closeWith(conn, closeNotFound, "ship not found")
		return
	}
	if !ship.IsRunning() || ship.Address == "" {
		closeWith(conn, websocket.CloseInternalServerErr, "ship is not running")
		return
	}

	binding, err := s.bindings.Get(r.Context(), sessionID, shipID)
	if err != nil || binding == nil {
		closeWith(conn, closeNoAccess, "session has no access to this ship")
		return
	}

	upstreamURL := terminalURL(ship.Address, s.cfg.Ship.ContainerPort, sessionID, query.Get("cols"), query.Get("rows"))
	upstream, _, err := websocket.DefaultDialer.DialContext(r.Context(), upstreamURL, nil)
	if err != nil {
		s.log.WithError(err).WithField("ship_id", ids.Short(shipID)).Warn("terminal upstream dial failed")
		closeWith(conn, websocket.CloseInternalServerErr, "failed to reach ship terminal")
		return
	}
	defer upstream.Close()

	s.log.WithFields(logrus.Fields{
		"ship_id":    ids.Short(shipID),
		"session_id": sessionID,
	}).Info("terminal session opened")

	errCh := make(chan error, 2)
	go pump(conn, upstream, errCh)
	go pump(upstream, conn, errCh)
	<-errCh

	// Closing both ends unblocks the surviving pump.
	_ = conn.Close()
	_ = upstream.Close()

	if err := s.bindings.TouchActivity(r.Context(), sessionID, shipID); err != nil {
		s.log.WithError(err).Debug("failed to touch session activity after terminal")
	}
	s.log.WithField("ship_id", ids.Short(shipID)).Info("terminal session closed")
}

// terminalURL builds the downstream PTY websocket URL for a ship address in
// either the bare-IP or host:port form.
func terminalURL(address string, containerPort int, sessionID, cols, rows string) string {
	hostport := address
	if !strings.Contains(address, ":") {
		hostport = fmt.Sprintf("%s:%d", address, containerPort)
	}

	params := url.Values{}
	params.Set("session_id", sessionID)
	if cols != "" {
		params.Set("cols", cols)
	}
	if rows != "" {
		params.Set("rows", rows)
	}
	return "ws://" + hostport + "/term/ws?" + params.Encode()
}

// pump copies frames from src to dst until either side fails, preserving
// the text/binary message type.
func pump(src, dst *websocket.Conn, errCh chan<- error) {
	for {
		msgType, payload, err := src.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		if err := dst.WriteMessage(msgType, payload); err != nil {
			errCh <- err
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
