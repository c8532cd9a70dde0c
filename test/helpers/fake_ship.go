package helpers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeShip is an httptest server that behaves like the agent inside a ship
// container: it answers health probes, echoes exec payloads, and stores
// uploaded files in memory.
type FakeShip struct {
	Server *httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	// Healthy controls the /health answer.
	Healthy bool
	// ExecSucceeds controls forwarded operation outcomes.
	ExecSucceeds bool
	// LastSessionID records the X-SESSION-ID of the last request.
	LastSessionID string
}

func NewFakeShip(t *testing.T) *FakeShip {
	f := StartFakeShip()
	t.Cleanup(f.Close)
	return f
}

// StartFakeShip runs a fake ship without test cleanup wiring; the caller
// owns Close. Used by the BDD suite where no *testing.T is in scope.
func StartFakeShip() *FakeShip {
	f := &FakeShip{
		files:        make(map[string][]byte),
		Healthy:      true,
		ExecSucceeds: true,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// Close shuts the underlying httptest server down.
func (f *FakeShip) Close() {
	f.Server.Close()
}

// Address returns the host:port the harbor should store as the ship address.
func (f *FakeShip) Address() string {
	return strings.TrimPrefix(f.Server.URL, "http://")
}

func (f *FakeShip) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.LastSessionID = r.Header.Get("X-SESSION-ID")
	f.mu.Unlock()

	switch {
	case r.URL.Path == "/health":
		f.mu.Lock()
		healthy := f.Healthy
		f.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/upload" && r.Method == http.MethodPost:
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		path := r.FormValue("file_path")

		f.mu.Lock()
		f.files[path] = content
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"file_path": path,
		})

	case r.URL.Path == "/download" && r.Method == http.MethodGet:
		path := r.URL.Query().Get("file_path")
		if strings.Contains(path, "..") {
			http.Error(w, "path traversal rejected", http.StatusForbidden)
			return
		}
		f.mu.Lock()
		content, ok := f.files[path]
		f.mu.Unlock()
		if !ok {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write(content)

	case r.Method == http.MethodPost:
		// Any other POST is a forwarded operation; echo the payload back.
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)

		f.mu.Lock()
		succeeds := f.ExecSucceeds
		f.mu.Unlock()

		if !succeeds {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "execution failed",
			})
			return
		}
		data := map[string]interface{}{"echo": payload}
		if cmd, ok := payload["command"].(string); ok {
			data["stdout"] = strings.TrimPrefix(cmd, "echo ")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    data,
		})

	default:
		http.NotFound(w, r)
	}
}

// FileContent returns an uploaded file's bytes.
func (f *FakeShip) FileContent(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	return content, ok
}

// PutFile seeds a file so downloads can find it.
func (f *FakeShip) PutFile(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

// SetHealthy toggles the health probe answer.
func (f *FakeShip) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Healthy = healthy
}

// SetExecSucceeds toggles forwarded operation outcomes.
func (f *FakeShip) SetExecSucceeds(succeeds bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExecSucceeds = succeeds
}
