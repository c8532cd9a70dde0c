package harbor

import "errors"

// Sentinel errors surfaced across the control plane. The API layer maps
// these to HTTP status codes with errors.Is.
var (
	// ErrShipNotFound means no ship row exists for the given id.
	ErrShipNotFound = errors.New("ship not found")

	// ErrShipNotRunning means an operation required a Running ship.
	ErrShipNotRunning = errors.New("ship not running")

	// ErrShipAlreadyStopped means a soft delete targeted a Stopped ship.
	ErrShipAlreadyStopped = errors.New("ship already stopped")

	// ErrAccessDenied means the session holds no binding for the ship.
	ErrAccessDenied = errors.New("session does not have access to this ship")

	// ErrSessionNotFound means no binding exists for the session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRecordNotFound means no execution record exists for the given id.
	ErrRecordNotFound = errors.New("execution record not found")

	// ErrCapacityExceeded means the running-ship ceiling was hit and the
	// overflow policy is "reject".
	ErrCapacityExceeded = errors.New("maximum number of ships reached")

	// ErrCapacityWaitTimeout means the "wait" overflow policy gave up.
	ErrCapacityWaitTimeout = errors.New("timeout waiting for available ship slot")

	// ErrHealthTimeout means a fresh container never answered its health
	// probe; the ship has already been cleaned up when this is returned.
	ErrHealthTimeout = errors.New("ship failed to become ready")

	// ErrAddressUnavailable means the container started but no usable
	// address could be read within the driver's grace window.
	ErrAddressUnavailable = errors.New("ship address unavailable")

	// ErrDriverInit means the container runtime could not be reached.
	ErrDriverInit = errors.New("container driver initialization failed")

	// ErrForward wraps downstream non-2xx responses and transport failures.
	ErrForward = errors.New("request forwarding failed")

	// ErrUploadTooLarge means an upload exceeded the configured size cap.
	ErrUploadTooLarge = errors.New("upload exceeds maximum allowed size")
)
