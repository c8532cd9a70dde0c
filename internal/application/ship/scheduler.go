package ship

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

// CleanupScheduler keeps one pending stop timer per ship. Scheduling again
// for the same ship cancels the previous timer, so refreshed bindings push
// the stop out instead of stacking timers.
type CleanupScheduler struct {
	ships    harbor.ShipRepository
	bindings harbor.BindingRepository
	driver   driver.ContainerDriver
	metrics  *metrics.Metrics
	log      *logrus.Entry

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCleanupScheduler(
	ships harbor.ShipRepository,
	bindings harbor.BindingRepository,
	containerDriver driver.ContainerDriver,
	m *metrics.Metrics,
	log *logrus.Logger,
) *CleanupScheduler {
	return &CleanupScheduler{
		ships:    ships,
		bindings: bindings,
		driver:   containerDriver,
		metrics:  m,
		log:      log.WithField("component", "cleanup-scheduler"),
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the stop timer for a ship. A non-positive
// delay fires immediately.
func (s *CleanupScheduler) Schedule(shipID string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[shipID]; ok {
		timer.Stop()
	}

	s.log.WithFields(logrus.Fields{
		"ship_id": ids.Short(shipID),
		"delay":   delay.String(),
	}).Debug("cleanup scheduled")

	s.timers[shipID] = time.AfterFunc(delay, func() {
		s.fire(shipID)
	})
}

// Cancel drops the pending timer for a ship, if any.
func (s *CleanupScheduler) Cancel(shipID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[shipID]; ok {
		timer.Stop()
		delete(s.timers, shipID)
	}
}

// CancelAll stops every pending timer. Used on shutdown.
func (s *CleanupScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for shipID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, shipID)
	}
}

// PendingCount returns the number of armed timers.
func (s *CleanupScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Recompute reloads the ship's bindings and re-arms the timer for the
// latest expiry. With no active bindings the stop fires immediately.
func (s *CleanupScheduler) Recompute(ctx context.Context, shipID string) error {
	bindings, err := s.bindings.ListForShip(ctx, shipID)
	if err != nil {
		return err
	}

	var latest time.Time
	for _, b := range bindings {
		if e := harbor.EnsureUTC(b.ExpiresAt); e.After(latest) {
			latest = e
		}
	}

	delay := time.Until(latest)
	if delay < 0 {
		delay = 0
	}
	s.Schedule(shipID, delay)
	return nil
}

// fire stops a ship whose last binding expired. The timer entry is removed
// first so a concurrent Schedule arms a fresh timer instead of racing this
// one.
func (s *CleanupScheduler) fire(shipID string) {
	s.mu.Lock()
	delete(s.timers, shipID)
	s.mu.Unlock()

	ctx := context.Background()
	log := s.log.WithField("ship_id", ids.Short(shipID))

	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		log.WithError(err).Warn("cleanup fired for unknown ship")
		return
	}
	if !ship.IsRunning() {
		log.Debug("cleanup fired for non-running ship, nothing to do")
		return
	}

	containerID := ship.ContainerID
	ship.MarkStopped()
	if err := s.ships.Update(ctx, ship); err != nil {
		log.WithError(err).Error("failed to mark expired ship stopped")
		return
	}

	if containerID != "" {
		if err := s.driver.StopShipContainer(ctx, containerID); err != nil {
			log.WithError(err).Warn("failed to stop expired ship container")
		}
	}

	if expired, err := s.bindings.ExpireForShip(ctx, shipID); err != nil {
		log.WithError(err).Warn("failed to expire bindings of stopped ship")
	} else if expired > 0 {
		log.WithField("expired_sessions", expired).Info("ship expired, sessions released")
	} else {
		log.Info("ship expired")
	}

	s.metrics.RecordCleanup()
}
