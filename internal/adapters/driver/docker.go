package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

// addressMode selects how a container address is resolved.
type addressMode int

const (
	// modeNetwork reads the container's IP on the configured network. Used
	// when the harbor itself runs inside the container network.
	modeNetwork addressMode = iota
	// modeHostPort reads the host-mapped port and returns 127.0.0.1:port.
	// Used when the harbor runs directly on the host.
	modeHostPort
)

const addressPollInterval = 500 * time.Millisecond

// dockerDriver drives docker-compatible engines through the docker API. The
// podman variants reuse it by pointing the client at the podman socket.
type dockerDriver struct {
	cfg      *config.DriverConfig
	shipPort int
	mode     addressMode
	host     string // non-empty overrides the engine socket (podman)
	cli      *client.Client
	log      *logrus.Entry
}

func newDockerDriver(cfg *config.DriverConfig, shipPort int, mode addressMode, host string, log *logrus.Logger) *dockerDriver {
	component := "docker-driver"
	if host != "" {
		component = "podman-driver"
	}
	return &dockerDriver{
		cfg:      cfg,
		shipPort: shipPort,
		mode:     mode,
		host:     host,
		log:      log.WithField("component", component),
	}
}

// podmanSocket resolves the podman socket URL, preferring the configured
// override, then the rootless socket under XDG_RUNTIME_DIR, then the
// system socket.
func podmanSocket(cfg *config.DriverConfig) string {
	if cfg.PodmanSocket != "" {
		if strings.Contains(cfg.PodmanSocket, "://") {
			return cfg.PodmanSocket
		}
		return "unix://" + cfg.PodmanSocket
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return fmt.Sprintf("unix://%s/podman/podman.sock", xdg)
	}
	if os.Geteuid() != 0 {
		return fmt.Sprintf("unix:///run/user/%d/podman/podman.sock", os.Geteuid())
	}
	return "unix:///run/podman/podman.sock"
}

func (d *dockerDriver) Initialize(ctx context.Context) error {
	if d.cli != nil {
		return nil
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if d.host != "" {
		opts = append(opts, client.WithHost(d.host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", harbor.ErrDriverInit, err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return fmt.Errorf("%w: %v", harbor.ErrDriverInit, err)
	}

	d.cli = cli
	d.log.Info("container driver initialized")
	return nil
}

func (d *dockerDriver) Close() error {
	if d.cli == nil {
		return nil
	}
	err := d.cli.Close()
	d.cli = nil
	return err
}

func (d *dockerDriver) CreateShipContainer(ctx context.Context, ship *harbor.Ship, spec *harbor.ShipSpec) (*ContainerInfo, error) {
	if err := d.Initialize(ctx); err != nil {
		return nil, err
	}

	name := "ship-" + ship.ID
	cfg, hostCfg, netCfg, err := d.buildContainerConfig(ship, spec)
	if err != nil {
		return nil, err
	}

	// Replace any stale container holding the name
	_ = d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, name)
	if err != nil && hostCfg.StorageOpt != nil && isStorageOptError(err) {
		// Some engines reject disk quotas outright (overlay2 without pquota).
		// Retry once without the quota rather than failing the ship.
		d.log.WithError(err).Warn("storage quota not supported by container runtime, retrying without disk limit")
		hostCfg.StorageOpt = nil
		created, err = d.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create container for ship %s: %w", ship.ID, err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		d.removeContainer(context.Background(), created.ID)
		return nil, fmt.Errorf("failed to start container for ship %s: %w", ship.ID, err)
	}

	address, status, err := d.waitForAddress(ctx, created.ID)
	if err != nil {
		d.removeContainer(context.Background(), created.ID)
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"ship_id":      ship.ID,
		"container_id": created.ID,
		"address":      address,
	}).Debug("ship container started")

	return &ContainerInfo{ContainerID: created.ID, Address: address, Status: status}, nil
}

func (d *dockerDriver) buildContainerConfig(ship *harbor.Ship, spec *harbor.ShipSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	dirs, err := ensureShipDirs(d.cfg.DataDir, ship.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	portKey := nat.Port(fmt.Sprintf("%d/tcp", d.shipPort))

	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
		PortBindings: nat.PortMap{
			portKey: []nat.PortBinding{{HostPort: ""}},
		},
		Binds: []string{
			dirs.Home + ":/home",
			dirs.Metadata + ":/app/metadata",
		},
	}

	if spec != nil {
		if spec.CPUs > 0 {
			hostCfg.Resources.CPUQuota = int64(spec.CPUs * 100000)
			hostCfg.Resources.CPUPeriod = 100000
		}
		if spec.Memory != "" {
			memBytes, err := EnforceMinimumMemory(spec.Memory, d.log.Logger)
			if err != nil {
				return nil, nil, nil, err
			}
			hostCfg.Resources.Memory = memBytes
		}
		if spec.Disk != "" {
			diskBytes, err := EnforceMinimumDisk(spec.Disk, d.log.Logger)
			if err != nil {
				return nil, nil, nil, err
			}
			// Requires an engine storage driver with project quotas; if the
			// engine rejects it, create retries without the option.
			hostCfg.StorageOpt = map[string]string{"size": strconv.FormatInt(diskBytes, 10)}
		}
	}

	cfg := &container.Config{
		Image: d.cfg.Image,
		Env: []string{
			"SHIP_ID=" + ship.ID,
			"TTL=" + strconv.Itoa(ship.TTL),
		},
		Labels: map[string]string{
			"ship_id":    ship.ID,
			"created_by": "harbor",
		},
		ExposedPorts: nat.PortSet{portKey: struct{}{}},
	}

	var netCfg *network.NetworkingConfig
	if d.cfg.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				d.cfg.Network: {},
			},
		}
	}

	return cfg, hostCfg, netCfg, nil
}

// waitForAddress polls inspect until the container exposes a usable address
// or the grace window runs out.
func (d *dockerDriver) waitForAddress(ctx context.Context, containerID string) (string, string, error) {
	deadline := time.Now().Add(d.cfg.AddressGrace)
	for {
		inspect, err := d.cli.ContainerInspect(ctx, containerID)
		if err != nil {
			return "", "", fmt.Errorf("failed to inspect container %s: %w", containerID, err)
		}

		if address := d.extractAddress(&inspect); address != "" {
			return address, inspect.State.Status, nil
		}

		if time.Now().After(deadline) {
			d.log.WithField("container_id", containerID).Error("no usable address within grace window")
			return "", "", harbor.ErrAddressUnavailable
		}

		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(addressPollInterval):
		}
	}
}

func (d *dockerDriver) extractAddress(inspect *container.InspectResponse) string {
	if inspect.NetworkSettings == nil {
		return ""
	}

	if d.mode == modeHostPort {
		portKey := nat.Port(fmt.Sprintf("%d/tcp", d.shipPort))
		if bindings, ok := inspect.NetworkSettings.Ports[portKey]; ok && len(bindings) > 0 {
			if hostPort := bindings[0].HostPort; hostPort != "" {
				return "127.0.0.1:" + hostPort
			}
		}
		return ""
	}

	if d.cfg.Network != "" {
		if endpoint, ok := inspect.NetworkSettings.Networks[d.cfg.Network]; ok && endpoint != nil {
			return endpoint.IPAddress
		}
	}
	return inspect.NetworkSettings.DefaultNetworkSettings.IPAddress
}

func (d *dockerDriver) StopShipContainer(ctx context.Context, containerID string) error {
	if err := d.Initialize(ctx); err != nil {
		return err
	}

	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			d.log.WithField("container_id", containerID).Warn("container already gone")
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}

	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

func (d *dockerDriver) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	if err := d.Initialize(ctx); err != nil {
		return false, err
	}

	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

func (d *dockerDriver) GetContainerLogs(ctx context.Context, containerID string) (string, error) {
	if err := d.Initialize(ctx); err != nil {
		return "", err
	}

	reader, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read logs for container %s: %w", containerID, err)
	}
	defer reader.Close()

	// The engine multiplexes stdout/stderr on one stream
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return "", fmt.Errorf("failed to demultiplex logs for container %s: %w", containerID, err)
	}
	return buf.String(), nil
}

func (d *dockerDriver) ShipDataExists(shipID string) bool {
	return shipDataExists(d.cfg.DataDir, shipID)
}

// DeleteShipData is a no-op: host-mounted ship data is never auto-deleted.
func (d *dockerDriver) DeleteShipData(ctx context.Context, shipID string) error {
	return nil
}

func (d *dockerDriver) removeContainer(ctx context.Context, containerID string) {
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		d.log.WithError(err).WithField("container_id", containerID).Warn("failed to clean up container")
	}
}

func isStorageOptError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "storage-opt") || strings.Contains(msg, "storageopt")
}
