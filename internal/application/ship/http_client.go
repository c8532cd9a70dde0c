package ship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

const healthProbeTimeout = 5 * time.Second

// Client talks to the agent process inside a ship container.
type Client struct {
	cfg *config.ShipConfig
	log *logrus.Entry
}

func NewClient(cfg *config.ShipConfig, log *logrus.Logger) *Client {
	return &Client{
		cfg: cfg,
		log: log.WithField("component", "ship-client"),
	}
}

// BaseURL turns a stored ship address into the agent's base URL. Addresses
// with an explicit port ("127.0.0.1:39314") are used as-is; bare IPs get the
// configured container port.
func (c *Client) BaseURL(address string) string {
	if strings.Contains(address, ":") {
		return "http://" + address
	}
	return fmt.Sprintf("http://%s:%d", address, c.cfg.ContainerPort)
}

// WaitForReady polls the ship's health endpoint until it answers 200 or the
// configured timeout elapses.
func (c *Client) WaitForReady(ctx context.Context, address string) error {
	healthURL := c.BaseURL(address) + "/health"
	client := &http.Client{Timeout: healthProbeTimeout}

	deadline := time.Now().Add(c.cfg.HealthCheckTimeout)
	limiter := rate.NewLimiter(rate.Every(c.cfg.HealthCheckInterval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			c.log.WithField("address", address).Warn("ship never became healthy")
			return harbor.ErrHealthTimeout
		}
	}
}

// Forward posts an operation to the ship. The operation type doubles as the
// downstream path: "ipython/exec" becomes POST {base}/ipython/exec.
func (c *Client) Forward(ctx context.Context, address, sessionID, opType string, payload map[string]interface{}) (*ExecResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding payload: %v", harbor.ErrForward, err)
	}

	targetURL := c.BaseURL(address) + "/" + strings.TrimPrefix(opType, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SESSION-ID", sessionID)

	client := &http.Client{Timeout: c.cfg.ExecTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", harbor.ErrForward, err)
	}

	var result ExecResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		// Non-JSON answers still surface as a failed operation rather than
		// an opaque transport error.
		result = ExecResponse{Success: false, Error: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= 300 && result.Error == "" {
		result.Success = false
		result.Error = "ship returned status " + strconv.Itoa(resp.StatusCode)
	}
	return &result, nil
}

// Upload streams a file to the ship as multipart form data.
func (c *Client) Upload(ctx context.Context, address, sessionID, filePath, fileName string, content io.Reader) (*UploadResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	if err := writer.WriteField("file_path", filePath); err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL(address)+"/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-SESSION-ID", sessionID)

	client := &http.Client{Timeout: c.cfg.TransferTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", harbor.ErrForward, err)
	}

	var result UploadResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		result = UploadResponse{Success: false, Error: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= 300 && result.Error == "" {
		result.Success = false
		result.Error = "ship returned status " + strconv.Itoa(resp.StatusCode)
	}
	return &result, nil
}

// Download fetches a file from the ship. The downstream status code is
// returned alongside so callers can pass 404/403 answers through.
func (c *Client) Download(ctx context.Context, address, sessionID, filePath string) ([]byte, int, error) {
	downloadURL := c.BaseURL(address) + "/download?file_path=" + url.QueryEscape(filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	req.Header.Set("X-SESSION-ID", sessionID)

	client := &http.Client{Timeout: c.cfg.TransferTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", harbor.ErrForward, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading response: %v", harbor.ErrForward, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("%w: ship returned status %d: %s", harbor.ErrForward, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, resp.StatusCode, nil
}
