package ship

import (
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// CreateShipRequest carries the client's wishes for a new or resolved ship.
type CreateShipRequest struct {
	// TTL in seconds; must be positive.
	TTL int `json:"ttl" validate:"required,gt=0"`

	// Spec overrides container resources for a fresh container. Ignored when
	// an existing ship is reused.
	Spec *harbor.ShipSpec `json:"spec"`

	// ForceCreate skips reuse and restore and always provisions a fresh ship.
	ForceCreate bool `json:"force_create"`
}

// ExecRequest is an operation forwarded to a ship.
type ExecRequest struct {
	// Type is the downstream path, e.g. "ipython/exec" or "shell/exec".
	Type string `json:"type" validate:"required"`

	// Payload is passed through to the ship as the request body.
	Payload map[string]interface{} `json:"payload"`
}

// ExecResponse is the ship's answer to a forwarded operation.
type ExecResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`

	// ExecutionID is set when the operation was recorded in the session
	// history.
	ExecutionID string `json:"execution_id,omitempty"`
}

// UploadResponse reports the outcome of a file upload.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}
