package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-dev/harbor/internal/adapters/api"
	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/adapters/persistence"
	"github.com/shipyard-dev/harbor/internal/application/session"
	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
	"github.com/shipyard-dev/harbor/test/helpers"
)

const testToken = "test-token"

type apiHarness struct {
	server   *httptest.Server
	fakeShip *helpers.FakeShip
	driver   *helpers.FakeDriver
	cfg      *config.Config
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	bindings := persistence.NewBindingRepository(db)
	records := persistence.NewExecutionRecordRepository(db)

	fakeShip := helpers.NewFakeShip(t)
	fakeDriver := helpers.NewFakeDriver()
	fakeDriver.Address = fakeShip.Address()

	cfg := config.DefaultConfig()
	cfg.Server.AccessToken = testToken
	cfg.Ship.HealthCheckTimeout = 2 * time.Second
	cfg.Ship.HealthCheckInterval = 20 * time.Millisecond
	cfg.Ship.OverflowPolicy = "reject"
	cfg.Metrics.Enabled = true
	metrics.InitRegistry()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	scheduler := ship.NewCleanupScheduler(ships, bindings, fakeDriver, nil, log)
	t.Cleanup(scheduler.CancelAll)

	client := ship.NewClient(&cfg.Ship, log)
	shipService := ship.NewService(ships, bindings, records, fakeDriver, client, scheduler, &cfg.Ship, nil, log)
	sessionService := session.NewService(bindings, records, scheduler, log)

	server := api.NewServer(cfg, shipService, sessionService, bindings, log)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &apiHarness{server: ts, fakeShip: fakeShip, driver: fakeDriver, cfg: cfg}
}

func (h *apiHarness) request(t *testing.T, method, path, sessionID string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if sessionID != "" {
		req.Header.Set("X-SESSION-ID", sessionID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func (h *apiHarness) createShip(t *testing.T, sessionID string) *api.ShipView {
	t.Helper()
	resp := h.request(t, http.MethodPost, "/ship", sessionID, map[string]interface{}{"ttl": 60})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view api.ShipView
	decodeBody(t, resp, &view)
	return &view
}

func TestAPI_PublicEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(h.server.URL + "/stat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stat api.StatView
	decodeBody(t, resp, &stat)
	assert.Equal(t, "harbor", stat.Service)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_AuthRequired(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.server.URL + "/ships")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/ships", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CreateGetDeleteShip(t *testing.T) {
	h := newAPIHarness(t)

	created := h.createShip(t, "session-a")
	assert.Equal(t, "running", created.Status)
	assert.NotEmpty(t, created.Address)
	require.NotNil(t, created.ExpiresAt)

	resp := h.request(t, http.MethodGet, "/ship/"+created.ID, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Soft delete, then delete again: 204 then 404
	resp = h.request(t, http.MethodDelete, "/ship/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.request(t, http.MethodDelete, "/ship/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreateShip_Validation(t *testing.T) {
	h := newAPIHarness(t)

	// Missing session header
	resp := h.request(t, http.MethodPost, "/ship", "", map[string]interface{}{"ttl": 60})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown body fields are rejected
	resp = h.request(t, http.MethodPost, "/ship", "session-a", map[string]interface{}{"ttl": 60, "bogus": true})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Non-positive ttl is rejected
	resp = h.request(t, http.MethodPost, "/ship", "session-a", map[string]interface{}{"ttl": -5})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Zero ttl is rejected, not silently defaulted
	resp = h.request(t, http.MethodPost, "/ship", "session-a", map[string]interface{}{"ttl": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Omitted ttl is rejected
	resp = h.request(t, http.MethodPost, "/ship", "session-a", map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPI_GetShip_NotFound(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.request(t, http.MethodGet, "/ship/no-such-ship", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ExecFlow(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	resp := h.request(t, http.MethodPost, "/ship/"+created.ID+"/exec", "session-a", map[string]interface{}{
		"type":    "shell/exec",
		"payload": map[string]interface{}{"command": "echo Bay"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var execResp ship.ExecResponse
	decodeBody(t, resp, &execResp)
	assert.True(t, execResp.Success)
	assert.Contains(t, execResp.Data["stdout"], "Bay")
	require.NotEmpty(t, execResp.ExecutionID)

	// The recorded execution is retrievable through the history API
	resp = h.request(t, http.MethodGet, "/sessions/session-a/history/"+execResp.ExecutionID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry api.HistoryEntryView
	decodeBody(t, resp, &entry)
	assert.Equal(t, "shell", entry.ExecType)
	assert.Equal(t, "echo Bay", entry.Command)
}

func TestAPI_ExecAccessDenied(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	resp := h.request(t, http.MethodPost, "/ship/"+created.ID+"/exec", "session-b", map[string]interface{}{
		"type":    "shell/exec",
		"payload": map[string]interface{}{"command": "echo hi"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_ExecForwardFailure(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")
	h.fakeShip.SetExecSucceeds(false)

	resp := h.request(t, http.MethodPost, "/ship/"+created.ID+"/exec", "session-a", map[string]interface{}{
		"type":    "ipython/exec",
		"payload": map[string]interface{}{"code": "1/0"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ExtendTTL(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	resp := h.request(t, http.MethodPost, "/ship/"+created.ID+"/extend-ttl", "", map[string]interface{}{"ttl": 600})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view api.ShipView
	decodeBody(t, resp, &view)
	require.NotNil(t, view.ExpiresAt)
	assert.True(t, view.ExpiresAt.After(*created.ExpiresAt))

	// Zero ttl is a validation error
	resp = h.request(t, http.MethodPost, "/ship/"+created.ID+"/extend-ttl", "", map[string]interface{}{"ttl": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPI_ShipLogs(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	resp := h.request(t, http.MethodGet, "/ship/logs/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["logs"], created.ID)
}

func TestAPI_UploadTooLarge(t *testing.T) {
	h := newAPIHarness(t)
	h.cfg.Ship.MaxUploadSize = 16
	created := h.createShip(t, "session-a")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "big.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 1024))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("file_path", "/tmp/big.bin"))
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/ship/"+created.ID+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-SESSION-ID", "session-a")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAPI_DownloadPassthrough(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")
	h.fakeShip.PutFile("/data/t.txt", []byte("hello"))

	resp := h.request(t, http.MethodGet, "/ship/"+created.ID+"/download?file_path=/data/t.txt", "session-a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	resp = h.request(t, http.MethodGet, "/ship/"+created.ID+"/download?file_path=/missing.txt", "session-a", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SessionsAndOverview(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	resp := h.request(t, http.MethodGet, "/sessions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sessions []*api.SessionView
	decodeBody(t, resp, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-a", sessions[0].SessionID)
	assert.Equal(t, created.ID, sessions[0].ShipID)
	assert.True(t, sessions[0].IsActive)

	resp = h.request(t, http.MethodGet, "/stat/overview", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var overview api.OverviewView
	decodeBody(t, resp, &overview)
	assert.Equal(t, 1, overview.Ships.Running)
	assert.Equal(t, 1, overview.Sessions.Active)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	// Extend
	resp := h.request(t, http.MethodPost, "/sessions/session-a/extend-ttl", "", map[string]interface{}{"ttl": 7200})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view api.SessionView
	decodeBody(t, resp, &view)
	assert.True(t, view.ExpiresAt.After(time.Now().Add(time.Hour)))

	// Ship-side session listing
	resp = h.request(t, http.MethodGet, fmt.Sprintf("/ship/%s/sessions", created.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Terminate, then 404
	resp = h.request(t, http.MethodDelete, "/sessions/session-a", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.request(t, http.MethodDelete, "/sessions/session-a", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_HistoryFiltersAndAnnotate(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	for _, command := range []string{"echo one", "echo two"} {
		resp := h.request(t, http.MethodPost, "/ship/"+created.ID+"/exec", "session-a", map[string]interface{}{
			"type":    "shell/exec",
			"payload": map[string]interface{}{"command": command},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := h.request(t, http.MethodGet, "/sessions/session-a/history?exec_type=shell", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page api.HistoryPageView
	decodeBody(t, resp, &page)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Entries, 2)

	// Annotate the newest entry
	target := page.Entries[0]
	resp = h.request(t, http.MethodPatch, "/sessions/session-a/history/"+target.ID, "", map[string]interface{}{
		"description": "prints a word",
		"tags":        "shell,demo",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Tag filter finds it
	resp = h.request(t, http.MethodGet, "/sessions/session-a/history?tags=demo", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &page)
	assert.EqualValues(t, 1, page.Total)

	// Last
	resp = h.request(t, http.MethodGet, "/sessions/session-a/history/last?exec_type=shell", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Foreign session cannot read the record
	resp = h.request(t, http.MethodGet, "/sessions/session-b/history/"+target.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_TerminalCloseCodes(t *testing.T) {
	h := newAPIHarness(t)
	created := h.createShip(t, "session-a")

	wsBase := "ws" + strings.TrimPrefix(h.server.URL, "http")

	// Wrong token
	conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/ship/"+created.ID+"/term?token=wrong&session_id=session-a", nil)
	require.NoError(t, err)
	defer conn.Close()
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4001, closeErr.Code)

	// Unknown ship
	conn, _, err = websocket.DefaultDialer.Dial(wsBase+"/ship/no-such-ship/term?token="+testToken+"&session_id=session-a", nil)
	require.NoError(t, err)
	defer conn.Close()
	_, _, err = conn.ReadMessage()
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4004, closeErr.Code)

	// Session without a binding
	conn, _, err = websocket.DefaultDialer.Dial(wsBase+"/ship/"+created.ID+"/term?token="+testToken+"&session_id=session-b", nil)
	require.NoError(t, err)
	defer conn.Close()
	_, _, err = conn.ReadMessage()
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4003, closeErr.Code)
}
