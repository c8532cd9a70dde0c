package status

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/adapters/driver"
	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/pkg/ids"
)

// DefaultInterval is how often the reconciler sweeps when no interval is
// configured.
const DefaultInterval = 60 * time.Second

// Checker reconciles stored ship statuses against container runtime truth.
// Ships marked Running whose containers died are demoted and their sessions
// released; Stopped rows that still point at a live container are promoted.
// A sweep never fails the loop; one bad ship is logged and skipped.
type Checker struct {
	ships    harbor.ShipRepository
	bindings harbor.BindingRepository
	driver   driver.ContainerDriver
	interval time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewChecker(
	ships harbor.ShipRepository,
	bindings harbor.BindingRepository,
	containerDriver driver.ContainerDriver,
	interval time.Duration,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{
		ships:    ships,
		bindings: bindings,
		driver:   containerDriver,
		interval: interval,
		metrics:  m,
		log:      log.WithField("component", "status-checker"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the reconcile loop.
func (c *Checker) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (c *Checker) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Sweep runs one full reconcile pass.
func (c *Checker) Sweep(ctx context.Context) {
	ships, err := c.ships.ListAll(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to list ships for reconcile")
		return
	}

	for _, ship := range ships {
		// In-flight creations settle on their own; touching them here
		// races the create path.
		if ship.Status == harbor.StatusCreating {
			continue
		}
		c.reconcileShip(ctx, ship)
	}

	c.expireOrphanBindings(ctx, ships)
	c.updateFleetGauges(ctx, ships)
}

// updateFleetGauges refreshes the ships-by-status and active-session gauges
// from the post-reconcile state.
func (c *Checker) updateFleetGauges(ctx context.Context, ships []*harbor.Ship) {
	if c.metrics == nil {
		return
	}

	counts := make(map[harbor.ShipStatus]int)
	for _, ship := range ships {
		counts[ship.Status]++
	}
	for _, s := range []harbor.ShipStatus{harbor.StatusStopped, harbor.StatusRunning, harbor.StatusCreating} {
		c.metrics.SetShipCount(s, counts[s])
	}

	bindings, err := c.bindings.ListAll(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to list bindings for session gauge")
		return
	}
	active := 0
	now := time.Now()
	for _, b := range bindings {
		if b.Active(now) {
			active++
		}
	}
	c.metrics.SetActiveSessions(active)
}

func (c *Checker) reconcileShip(ctx context.Context, ship *harbor.Ship) {
	log := c.log.WithField("ship_id", ids.Short(ship.ID))

	switch ship.Status {
	case harbor.StatusRunning:
		if ship.ContainerID == "" {
			log.Warn("running ship has no container handle, demoting")
			c.demote(ctx, ship)
			return
		}
		alive, err := c.driver.IsContainerRunning(ctx, ship.ContainerID)
		if err != nil {
			log.WithError(err).Warn("failed to check container, skipping")
			return
		}
		if !alive {
			log.Warn("running ship's container died, demoting")
			c.demote(ctx, ship)
		}

	case harbor.StatusStopped:
		if ship.ContainerID == "" {
			return
		}
		alive, err := c.driver.IsContainerRunning(ctx, ship.ContainerID)
		if err != nil {
			log.WithError(err).Warn("failed to check container, skipping")
			return
		}
		if alive {
			log.Info("stopped ship's container is alive, promoting")
			ship.Status = harbor.StatusRunning
			if err := c.ships.Update(ctx, ship); err != nil {
				log.WithError(err).Error("failed to promote ship")
				return
			}
			c.metrics.RecordReconcilerRepair()
		}
	}
}

func (c *Checker) demote(ctx context.Context, ship *harbor.Ship) {
	log := c.log.WithField("ship_id", ids.Short(ship.ID))

	ship.MarkStopped()
	if err := c.ships.Update(ctx, ship); err != nil {
		log.WithError(err).Error("failed to demote ship")
		return
	}
	if expired, err := c.bindings.ExpireForShip(ctx, ship.ID); err != nil {
		log.WithError(err).Warn("failed to expire bindings of demoted ship")
	} else if expired > 0 {
		log.WithField("expired_sessions", expired).Info("sessions released")
	}
	c.metrics.RecordReconcilerRepair()
}

// expireOrphanBindings clamps active bindings that still point at ships
// which ended up Stopped, so sessions don't appear bound to dead ships.
func (c *Checker) expireOrphanBindings(ctx context.Context, ships []*harbor.Ship) {
	for _, ship := range ships {
		if ship.Status != harbor.StatusStopped {
			continue
		}
		expired, err := c.bindings.ExpireForShip(ctx, ship.ID)
		if err != nil {
			c.log.WithError(err).WithField("ship_id", ids.Short(ship.ID)).Warn("failed to expire orphan bindings")
			continue
		}
		if expired > 0 {
			c.log.WithFields(logrus.Fields{
				"ship_id":          ids.Short(ship.ID),
				"expired_sessions": expired,
			}).Info("orphan session bindings expired")
			c.metrics.RecordReconcilerRepair()
		}
	}
}
