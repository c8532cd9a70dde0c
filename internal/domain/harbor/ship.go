package harbor

import (
	"time"

	"github.com/google/uuid"
)

// ShipStatus describes the lifecycle state of a Ship.
type ShipStatus int

const (
	// StatusStopped means the container is not running; on-disk data may remain.
	StatusStopped ShipStatus = 0
	// StatusRunning means the container is up and reachable at Ship.Address.
	StatusRunning ShipStatus = 1
	// StatusCreating means the row exists but the container is not ready yet.
	StatusCreating ShipStatus = 2
)

// String returns the lowercase name used in API views and logs.
func (s ShipStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusCreating:
		return "creating"
	default:
		return "unknown"
	}
}

// Ship is a single sandbox container managed by the Harbor.
//
// A Running ship always has a ContainerID and an Address. A Stopped ship has
// neither, but its on-disk data may still exist and allow a restore. TTL is
// informational; the authoritative expiry is computed from the ship's
// bindings (see EffectiveExpiry).
type Ship struct {
	ID          string
	Status      ShipStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ContainerID string
	// Address is either an internal IP ("172.18.0.2") with the default ship
	// port implied, or a host-mapped "127.0.0.1:39314". Callers must handle
	// both forms.
	Address string
	// TTL is the most recently requested lifetime in seconds.
	TTL int
	// ExpiresAt is computed from the ship's bindings, never persisted.
	ExpiresAt *time.Time
}

// NewShip returns a Ship in Creating with a fresh identifier.
func NewShip(ttl int) *Ship {
	now := time.Now().UTC()
	return &Ship{
		ID:        uuid.NewString(),
		Status:    StatusCreating,
		CreatedAt: now,
		UpdatedAt: now,
		TTL:       ttl,
	}
}

// IsRunning reports whether the ship is in Running status.
func (s *Ship) IsRunning() bool {
	return s.Status == StatusRunning
}

// MarkStopped transitions the ship to Stopped and clears the container handle
// and address, preserving any on-disk data the driver mounted.
func (s *Ship) MarkStopped() {
	s.Status = StatusStopped
	s.ContainerID = ""
	s.Address = ""
}

// MarkRunning transitions the ship to Running with the given handle and
// address.
func (s *Ship) MarkRunning(containerID, address string) {
	s.Status = StatusRunning
	s.ContainerID = containerID
	s.Address = address
}

// EffectiveExpiry returns the maximum expiry across the given bindings, or
// nil when there are none. Non-running ships have no expiry.
func (s *Ship) EffectiveExpiry(bindings []*Binding) *time.Time {
	if s.Status != StatusRunning || len(bindings) == 0 {
		return nil
	}
	var max time.Time
	for _, b := range bindings {
		if e := EnsureUTC(b.ExpiresAt); e.After(max) {
			max = e
		}
	}
	return &max
}
