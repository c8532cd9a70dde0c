package driver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

// ContainerInfo describes a created container.
type ContainerInfo struct {
	ContainerID string
	// Address is either an internal IP or "127.0.0.1:port" depending on the
	// driver mode.
	Address string
	Status  string
}

// ContainerDriver is the runtime abstraction behind ship containers. All
// operations are idempotent under concurrent calls on the same handle;
// stopping an already-removed container is success, inspecting one reports
// not running.
type ContainerDriver interface {
	// Initialize connects to the container runtime.
	Initialize(ctx context.Context) error
	// Close releases the runtime client.
	Close() error
	// CreateShipContainer creates and starts the container for a ship. On any
	// failure the partial container is removed best-effort before returning.
	CreateShipContainer(ctx context.Context, ship *harbor.Ship, spec *harbor.ShipSpec) (*ContainerInfo, error)
	// StopShipContainer stops and removes a container. A missing container is
	// not an error.
	StopShipContainer(ctx context.Context, containerID string) error
	// IsContainerRunning reports whether the container is live. A missing
	// container reports false.
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)
	// GetContainerLogs returns concatenated stdout+stderr, empty if the
	// container is gone.
	GetContainerLogs(ctx context.Context, containerID string) (string, error)
	// ShipDataExists reports whether on-disk data for the ship survives a
	// stop and allows a restore.
	ShipDataExists(shipID string) bool
	// DeleteShipData removes the ship's persistent data where the driver owns
	// it. Host-path drivers never auto-delete user data and treat this as a
	// no-op.
	DeleteShipData(ctx context.Context, shipID string) error
}

// New builds the configured container driver. The returned driver is not yet
// initialized.
func New(cfg *config.DriverConfig, shipPort int, log *logrus.Logger) (ContainerDriver, error) {
	switch cfg.Type {
	case "docker":
		return newDockerDriver(cfg, shipPort, modeNetwork, "", log), nil
	case "docker-host":
		return newDockerDriver(cfg, shipPort, modeHostPort, "", log), nil
	case "podman":
		return newDockerDriver(cfg, shipPort, modeNetwork, podmanSocket(cfg), log), nil
	case "podman-host":
		return newDockerDriver(cfg, shipPort, modeHostPort, podmanSocket(cfg), log), nil
	case "kubernetes":
		return newKubernetesDriver(cfg, log), nil
	case "containerd":
		return nil, fmt.Errorf("containerd driver is not implemented yet, use one of: docker, docker-host, podman, podman-host, kubernetes")
	default:
		return nil, fmt.Errorf("unknown driver type: %s", cfg.Type)
	}
}
