package ship_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
	"github.com/shipyard-dev/harbor/test/helpers"
)

func newTestClient(t *testing.T) (*ship.Client, *helpers.FakeShip) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Ship.HealthCheckTimeout = 200 * time.Millisecond
	cfg.Ship.HealthCheckInterval = 20 * time.Millisecond

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return ship.NewClient(&cfg.Ship, log), helpers.NewFakeShip(t)
}

func TestClient_BaseURL(t *testing.T) {
	client, _ := newTestClient(t)

	// host:port addresses are used verbatim
	assert.Equal(t, "http://127.0.0.1:39314", client.BaseURL("127.0.0.1:39314"))
	// bare IPs get the configured container port
	assert.Equal(t, "http://172.18.0.2:8123", client.BaseURL("172.18.0.2"))
}

func TestClient_WaitForReady(t *testing.T) {
	client, fakeShip := newTestClient(t)

	err := client.WaitForReady(context.Background(), fakeShip.Address())
	assert.NoError(t, err)
}

func TestClient_WaitForReady_Timeout(t *testing.T) {
	client, fakeShip := newTestClient(t)
	fakeShip.SetHealthy(false)

	err := client.WaitForReady(context.Background(), fakeShip.Address())
	assert.ErrorIs(t, err, harbor.ErrHealthTimeout)
}

func TestClient_Forward(t *testing.T) {
	client, fakeShip := newTestClient(t)

	resp, err := client.Forward(context.Background(), fakeShip.Address(), "session-a",
		"shell/exec", map[string]interface{}{"command": "echo hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Data["stdout"])
	assert.Equal(t, "session-a", fakeShip.LastSessionID)
}

func TestClient_Forward_DownstreamFailure(t *testing.T) {
	client, fakeShip := newTestClient(t)
	fakeShip.SetExecSucceeds(false)

	resp, err := client.Forward(context.Background(), fakeShip.Address(), "session-a",
		"ipython/exec", map[string]interface{}{"code": "1/0"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestClient_Forward_TransportError(t *testing.T) {
	client, _ := newTestClient(t)

	// Nothing listens here
	_, err := client.Forward(context.Background(), "127.0.0.1:1", "session-a",
		"shell/exec", map[string]interface{}{"command": "echo hi"})
	assert.ErrorIs(t, err, harbor.ErrForward)
}

func TestClient_UploadAndDownload(t *testing.T) {
	client, fakeShip := newTestClient(t)
	ctx := context.Background()

	resp, err := client.Upload(ctx, fakeShip.Address(), "session-a", "/data/t.txt", "t.txt",
		strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	content, ok := fakeShip.FileContent("/data/t.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(content))

	data, status, err := client.Download(ctx, fakeShip.Address(), "session-a", "/data/t.txt")
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, "hello", string(data))
}

func TestClient_Download_MissingFile(t *testing.T) {
	client, fakeShip := newTestClient(t)

	_, status, err := client.Download(context.Background(), fakeShip.Address(), "session-a", "/nope.txt")
	assert.ErrorIs(t, err, harbor.ErrForward)
	assert.Equal(t, 404, status)
}

func TestClient_Download_PathTraversal(t *testing.T) {
	client, fakeShip := newTestClient(t)

	_, status, err := client.Download(context.Background(), fakeShip.Address(), "session-a", "../../etc/passwd")
	assert.ErrorIs(t, err, harbor.ErrForward)
	assert.Equal(t, 403, status)
}
