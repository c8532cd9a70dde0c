package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/adapters/persistence"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/status"
	"github.com/shipyard-dev/harbor/test/helpers"
)

type checkerHarness struct {
	checker  *status.Checker
	ships    *persistence.ShipRepositoryGORM
	bindings *persistence.BindingRepositoryGORM
	driver   *helpers.FakeDriver
}

func newCheckerHarness(t *testing.T) *checkerHarness {
	t.Helper()

	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	bindings := persistence.NewBindingRepository(db)
	fakeDriver := helpers.NewFakeDriver()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	metrics.InitRegistry()
	m := metrics.New()
	require.NoError(t, m.Register())

	return &checkerHarness{
		checker:  status.NewChecker(ships, bindings, fakeDriver, time.Hour, m, log),
		ships:    ships,
		bindings: bindings,
		driver:   fakeDriver,
	}
}

// gaugeValue reads one gauge back from the registry, optionally narrowed to
// a label pair.
func gaugeValue(t *testing.T, name, label, labelValue string) float64 {
	t.Helper()

	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, sample := range family.GetMetric() {
			if label == "" {
				return sample.GetGauge().GetValue()
			}
			for _, pair := range sample.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == labelValue {
					return sample.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("gauge %s{%s=%q} not found", name, label, labelValue)
	return 0
}

func (h *checkerHarness) seedRunningShip(t *testing.T) *harbor.Ship {
	t.Helper()
	ctx := context.Background()

	s := harbor.NewShip(60)
	require.NoError(t, h.ships.Create(ctx, s))
	info, err := h.driver.CreateShipContainer(ctx, s, nil)
	require.NoError(t, err)
	s.MarkRunning(info.ContainerID, info.Address)
	require.NoError(t, h.ships.Update(ctx, s))
	return s
}

func TestChecker_DemotesDeadContainer(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	s := h.seedRunningShip(t)
	require.NoError(t, h.bindings.Create(ctx, harbor.NewBinding("session-a", s.ID, 3600)))
	h.driver.KillContainer(s.ContainerID)

	h.checker.Sweep(ctx)

	loaded, err := h.ships.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, harbor.StatusStopped, loaded.Status)
	assert.Empty(t, loaded.ContainerID)

	binding, err := h.bindings.Get(ctx, "session-a", s.ID)
	require.NoError(t, err)
	assert.False(t, binding.Active(time.Now()), "sessions of a dead ship are released")
}

func TestChecker_DemotesRunningWithoutHandle(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	s := harbor.NewShip(60)
	s.Status = harbor.StatusRunning
	require.NoError(t, h.ships.Create(ctx, s))

	h.checker.Sweep(ctx)

	loaded, err := h.ships.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, harbor.StatusStopped, loaded.Status)
}

func TestChecker_LeavesHealthyShipsAlone(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	s := h.seedRunningShip(t)
	require.NoError(t, h.bindings.Create(ctx, harbor.NewBinding("session-a", s.ID, 3600)))

	h.checker.Sweep(ctx)

	loaded, err := h.ships.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, harbor.StatusRunning, loaded.Status)

	binding, err := h.bindings.Get(ctx, "session-a", s.ID)
	require.NoError(t, err)
	assert.True(t, binding.Active(time.Now()))
}

func TestChecker_SkipsCreating(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	s := harbor.NewShip(60)
	require.NoError(t, h.ships.Create(ctx, s))

	h.checker.Sweep(ctx)

	loaded, err := h.ships.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, harbor.StatusCreating, loaded.Status, "in-flight creations are not touched")
}

func TestChecker_SweepUpdatesFleetGauges(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	running := h.seedRunningShip(t)
	require.NoError(t, h.bindings.Create(ctx, harbor.NewBinding("session-a", running.ID, 3600)))

	stopped := harbor.NewShip(60)
	stopped.MarkStopped()
	require.NoError(t, h.ships.Create(ctx, stopped))

	h.checker.Sweep(ctx)

	assert.Equal(t, 1.0, gaugeValue(t, "harbor_fleet_ships", "status", "running"))
	assert.Equal(t, 1.0, gaugeValue(t, "harbor_fleet_ships", "status", "stopped"))
	assert.Equal(t, 0.0, gaugeValue(t, "harbor_fleet_ships", "status", "creating"))
	assert.Equal(t, 1.0, gaugeValue(t, "harbor_fleet_active_sessions", "", ""))
}

func TestChecker_GaugesFollowDemotion(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	s := h.seedRunningShip(t)
	require.NoError(t, h.bindings.Create(ctx, harbor.NewBinding("session-a", s.ID, 3600)))
	h.driver.KillContainer(s.ContainerID)

	h.checker.Sweep(ctx)

	// The gauges reflect the post-reconcile state, not the stale rows.
	assert.Equal(t, 0.0, gaugeValue(t, "harbor_fleet_ships", "status", "running"))
	assert.Equal(t, 1.0, gaugeValue(t, "harbor_fleet_ships", "status", "stopped"))
	assert.Equal(t, 0.0, gaugeValue(t, "harbor_fleet_active_sessions", "", ""))
}

func TestChecker_ExpiresOrphanBindings(t *testing.T) {
	h := newCheckerHarness(t)
	ctx := context.Background()

	// A stopped ship somehow still holds an active binding
	s := harbor.NewShip(60)
	s.MarkStopped()
	require.NoError(t, h.ships.Create(ctx, s))
	require.NoError(t, h.bindings.Create(ctx, harbor.NewBinding("session-a", s.ID, 3600)))

	h.checker.Sweep(ctx)

	binding, err := h.bindings.Get(ctx, "session-a", s.ID)
	require.NoError(t, err)
	assert.False(t, binding.Active(time.Now()))
}
