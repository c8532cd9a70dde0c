package helpers

import (
	"context"
	"fmt"
	"sync"

	"github.com/shipyard-dev/harbor/internal/adapters/driver"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// FakeDriver is an in-memory ContainerDriver for tests. Containers are rows
// in a map; the address handed out is configurable so tests can point ships
// at an httptest server.
type FakeDriver struct {
	mu sync.Mutex

	// Address is returned for every created container. Defaults to a
	// host:port form nothing listens on.
	Address string

	// CreateErr, when set, fails the next create.
	CreateErr error

	running  map[string]bool
	logs     map[string]string
	shipData map[string]bool
	created  int
	stopped  int
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Address:  "127.0.0.1:1",
		running:  make(map[string]bool),
		logs:     make(map[string]string),
		shipData: make(map[string]bool),
	}
}

func (d *FakeDriver) Initialize(ctx context.Context) error { return nil }
func (d *FakeDriver) Close() error                         { return nil }

func (d *FakeDriver) CreateShipContainer(ctx context.Context, ship *harbor.Ship, spec *harbor.ShipSpec) (*driver.ContainerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CreateErr != nil {
		err := d.CreateErr
		d.CreateErr = nil
		return nil, err
	}

	d.created++
	containerID := fmt.Sprintf("container-%s", ship.ID)
	d.running[containerID] = true
	d.shipData[ship.ID] = true
	d.logs[containerID] = "fake logs for " + ship.ID
	return &driver.ContainerInfo{
		ContainerID: containerID,
		Address:     d.Address,
		Status:      "running",
	}, nil
}

func (d *FakeDriver) StopShipContainer(ctx context.Context, containerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, containerID)
	d.stopped++
	return nil
}

func (d *FakeDriver) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[containerID], nil
}

func (d *FakeDriver) GetContainerLogs(ctx context.Context, containerID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logs[containerID], nil
}

func (d *FakeDriver) ShipDataExists(shipID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shipData[shipID]
}

func (d *FakeDriver) DeleteShipData(ctx context.Context, shipID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shipData, shipID)
	return nil
}

// KillContainer simulates a container dying outside the harbor's control.
func (d *FakeDriver) KillContainer(containerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, containerID)
}

// DropShipData simulates lost on-disk data.
func (d *FakeDriver) DropShipData(shipID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shipData, shipID)
}

// CreatedCount returns how many containers were created.
func (d *FakeDriver) CreatedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// StoppedCount returns how many containers were stopped.
func (d *FakeDriver) StoppedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}
