package ship

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/adapters/driver"
	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
	"github.com/shipyard-dev/harbor/pkg/ids"
)

// Service resolves sessions to running ships and drives the ship lifecycle.
//
// Resolution walks a ladder: reuse the session's running ship, restore its
// stopped ship when on-disk data survives, take over an unbound warm pool
// ship, and only then provision a fresh container behind the capacity gate.
type Service struct {
	ships     harbor.ShipRepository
	bindings  harbor.BindingRepository
	records   harbor.ExecutionRecordRepository
	driver    driver.ContainerDriver
	client    *Client
	scheduler *CleanupScheduler
	cfg       *config.ShipConfig
	metrics   *metrics.Metrics
	log       *logrus.Entry
}

func NewService(
	ships harbor.ShipRepository,
	bindings harbor.BindingRepository,
	records harbor.ExecutionRecordRepository,
	containerDriver driver.ContainerDriver,
	client *Client,
	scheduler *CleanupScheduler,
	cfg *config.ShipConfig,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Service {
	return &Service{
		ships:     ships,
		bindings:  bindings,
		records:   records,
		driver:    containerDriver,
		client:    client,
		scheduler: scheduler,
		cfg:       cfg,
		metrics:   m,
		log:       log.WithField("component", "ship-service"),
	}
}

// ResolveShip returns a running ship for the session, walking the reuse /
// restore / warm pool / create ladder. The returned ship always carries its
// computed expiry.
func (s *Service) ResolveShip(ctx context.Context, sessionID string, req *CreateShipRequest) (*harbor.Ship, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	log := s.log.WithField("session_id", sessionID)

	if !req.ForceCreate {
		// Rung 1: the session already has a running ship.
		active, err := s.ships.FindActiveForSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			alive, err := s.driver.IsContainerRunning(ctx, active.ContainerID)
			if err != nil {
				return nil, err
			}
			if alive {
				log.WithField("ship_id", ids.Short(active.ID)).Debug("reusing session's running ship")
				if err := s.refreshBinding(ctx, sessionID, active.ID, ttl); err != nil {
					return nil, err
				}
				return s.withExpiry(ctx, active)
			}
			// The store said running but the container is gone. Demote and
			// try a restore instead.
			log.WithField("ship_id", ids.Short(active.ID)).Warn("bound ship's container is dead, demoting")
			active.MarkStopped()
			if err := s.ships.Update(ctx, active); err != nil {
				return nil, err
			}
		}

		// Rung 2: the session owns a stopped ship whose data survived.
		stopped, err := s.ships.FindStoppedForSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if stopped != nil && s.driver.ShipDataExists(stopped.ID) {
			restored, err := s.restoreShip(ctx, sessionID, stopped, ttl)
			if err != nil {
				return nil, err
			}
			return s.withExpiry(ctx, restored)
		}

		// Rung 3: take over an unbound warm pool ship.
		warm, err := s.takeWarmPoolShip(ctx, sessionID, ttl)
		if err != nil {
			return nil, err
		}
		if warm != nil {
			return s.withExpiry(ctx, warm)
		}
	}

	// Rung 4: provision a fresh ship.
	created, err := s.createShip(ctx, sessionID, ttl, req.Spec)
	if err != nil {
		return nil, err
	}
	return s.withExpiry(ctx, created)
}

// takeWarmPoolShip binds the oldest unbound running ship to the session. The
// container is re-verified before the binding is committed; a dead pool ship
// is demoted and the caller falls through to a fresh create.
func (s *Service) takeWarmPoolShip(ctx context.Context, sessionID string, ttl int) (*harbor.Ship, error) {
	warm, err := s.ships.FindWarmPoolShip(ctx)
	if err != nil {
		return nil, err
	}
	if warm == nil {
		return nil, nil
	}

	alive, err := s.driver.IsContainerRunning(ctx, warm.ContainerID)
	if err != nil {
		return nil, err
	}
	if !alive {
		s.log.WithField("ship_id", ids.Short(warm.ID)).Warn("warm pool ship's container is dead, demoting")
		warm.MarkStopped()
		if err := s.ships.Update(ctx, warm); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := s.bindings.Create(ctx, harbor.NewBinding(sessionID, warm.ID, ttl)); err != nil {
		return nil, err
	}
	warm.TTL = ttl
	if err := s.ships.Update(ctx, warm); err != nil {
		return nil, err
	}
	if err := s.scheduler.Recompute(ctx, warm.ID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"ship_id":    ids.Short(warm.ID),
	}).Info("warm pool ship assigned")
	return warm, nil
}

// restoreShip brings a stopped ship back up on its surviving data.
func (s *Service) restoreShip(ctx context.Context, sessionID string, ship *harbor.Ship, ttl int) (*harbor.Ship, error) {
	if err := s.waitForCapacity(ctx); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"ship_id":    ids.Short(ship.ID),
	})
	log.Info("restoring stopped ship")

	ship.TTL = ttl
	info, err := s.driver.CreateShipContainer(ctx, ship, s.defaultSpec())
	if err != nil {
		s.metrics.RecordShipCreation(false)
		ship.MarkStopped()
		_ = s.ships.Update(ctx, ship)
		return nil, fmt.Errorf("failed to restore ship %s: %w", ship.ID, err)
	}

	if err := s.client.WaitForReady(ctx, info.Address); err != nil {
		s.metrics.RecordShipCreation(false)
		_ = s.driver.StopShipContainer(ctx, info.ContainerID)
		ship.MarkStopped()
		_ = s.ships.Update(ctx, ship)
		return nil, err
	}

	ship.MarkRunning(info.ContainerID, info.Address)
	if err := s.ships.Update(ctx, ship); err != nil {
		return nil, err
	}
	s.metrics.RecordShipCreation(true)

	if err := s.refreshBinding(ctx, sessionID, ship.ID, ttl); err != nil {
		return nil, err
	}
	return ship, nil
}

// createShip provisions a brand-new ship behind the capacity gate.
func (s *Service) createShip(ctx context.Context, sessionID string, ttl int, spec *harbor.ShipSpec) (*harbor.Ship, error) {
	if err := s.waitForCapacity(ctx); err != nil {
		return nil, err
	}

	if spec == nil {
		spec = s.defaultSpec()
	}

	ship := harbor.NewShip(ttl)
	if err := s.ships.Create(ctx, ship); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"ship_id":    ids.Short(ship.ID),
	})
	log.Info("creating ship")

	info, err := s.driver.CreateShipContainer(ctx, ship, spec)
	if err != nil {
		s.metrics.RecordShipCreation(false)
		_ = s.ships.Delete(ctx, ship.ID)
		return nil, err
	}

	if err := s.client.WaitForReady(ctx, info.Address); err != nil {
		s.metrics.RecordShipCreation(false)
		_ = s.driver.StopShipContainer(ctx, info.ContainerID)
		_ = s.ships.Delete(ctx, ship.ID)
		return nil, err
	}

	ship.MarkRunning(info.ContainerID, info.Address)
	if err := s.ships.Update(ctx, ship); err != nil {
		return nil, err
	}
	s.metrics.RecordShipCreation(true)

	if sessionID != "" {
		if err := s.bindings.Create(ctx, harbor.NewBinding(sessionID, ship.ID, ttl)); err != nil {
			return nil, err
		}
		if err := s.scheduler.Recompute(ctx, ship.ID); err != nil {
			return nil, err
		}
	}

	log.WithField("address", ship.Address).Info("ship ready")
	return ship, nil
}

// waitForCapacity enforces the running-ship ceiling. The reject policy fails
// immediately; the wait policy polls for a freed slot until the timeout.
func (s *Service) waitForCapacity(ctx context.Context) error {
	count, err := s.ships.CountActive(ctx)
	if err != nil {
		return err
	}
	if count < s.cfg.MaxShips {
		return nil
	}

	if s.cfg.OverflowPolicy != "wait" {
		s.metrics.RecordCapacityRejection()
		return harbor.ErrCapacityExceeded
	}

	s.log.WithField("active", count).Info("at capacity, waiting for a free slot")
	deadline := time.Now().Add(s.cfg.SlotWaitTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.SlotPollInterval):
		}

		count, err = s.ships.CountActive(ctx)
		if err != nil {
			return err
		}
		if count < s.cfg.MaxShips {
			return nil
		}
		if time.Now().After(deadline) {
			s.metrics.RecordCapacityRejection()
			return harbor.ErrCapacityWaitTimeout
		}
	}
}

// GetShip returns a ship with its computed expiry. When sessionID is
// non-empty the session must hold a binding for the ship.
func (s *Service) GetShip(ctx context.Context, sessionID, shipID string) (*harbor.Ship, error) {
	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		return nil, err
	}
	if sessionID != "" {
		if err := s.checkAccess(ctx, sessionID, shipID); err != nil {
			return nil, err
		}
	}
	return s.withExpiry(ctx, ship)
}

// ListActive returns Running and Creating ships with computed expiries.
func (s *Service) ListActive(ctx context.Context) ([]*harbor.Ship, error) {
	ships, err := s.ships.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.withExpiries(ctx, ships)
}

// ListAll returns every ship row with computed expiries.
func (s *Service) ListAll(ctx context.Context) ([]*harbor.Ship, error) {
	ships, err := s.ships.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.withExpiries(ctx, ships)
}

// DeleteShip stops a ship. A soft delete keeps the row and on-disk data so
// the ship can be restored later; a permanent delete removes the row, the
// bindings, and driver-owned data.
func (s *Service) DeleteShip(ctx context.Context, shipID string, permanent bool) error {
	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		return err
	}

	log := s.log.WithField("ship_id", ids.Short(shipID))

	if !permanent && ship.Status == harbor.StatusStopped {
		return harbor.ErrShipAlreadyStopped
	}

	s.scheduler.Cancel(shipID)

	if ship.ContainerID != "" {
		if err := s.driver.StopShipContainer(ctx, ship.ContainerID); err != nil {
			log.WithError(err).Warn("failed to stop container during delete")
		}
	}

	if permanent {
		sessions, err := s.bindings.DeleteForShip(ctx, shipID)
		if err != nil {
			return err
		}
		if err := s.driver.DeleteShipData(ctx, shipID); err != nil {
			log.WithError(err).Warn("failed to delete ship data")
		}
		if err := s.ships.Delete(ctx, shipID); err != nil {
			return err
		}
		log.WithField("released_sessions", len(sessions)).Info("ship permanently deleted")
		return nil
	}

	ship.MarkStopped()
	if err := s.ships.Update(ctx, ship); err != nil {
		return err
	}
	if _, err := s.bindings.ExpireForShip(ctx, shipID); err != nil {
		log.WithError(err).Warn("failed to expire bindings during delete")
	}
	log.Info("ship stopped")
	return nil
}

// StartShip brings a specific ship up for a session. A running ship is
// returned as-is, a creating ship reports not ready, and a stopped ship is
// restored. A session without a binding for the ship gains one. A
// non-positive ttl falls back to the ship's last requested lifetime.
func (s *Service) StartShip(ctx context.Context, sessionID, shipID string, ttl int) (*harbor.Ship, error) {
	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = ship.TTL
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	switch ship.Status {
	case harbor.StatusRunning:
		if err := s.refreshBinding(ctx, sessionID, shipID, ttl); err != nil {
			return nil, err
		}
		return s.withExpiry(ctx, ship)
	case harbor.StatusCreating:
		return nil, harbor.ErrShipNotRunning
	default:
		restored, err := s.restoreShip(ctx, sessionID, ship, ttl)
		if err != nil {
			return nil, err
		}
		return s.withExpiry(ctx, restored)
	}
}

// ExtendTTL adds ttl seconds to every binding of the ship and pushes the
// cleanup timer out accordingly.
func (s *Service) ExtendTTL(ctx context.Context, shipID string, ttl int) (*harbor.Ship, error) {
	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		return nil, err
	}
	if !ship.IsRunning() {
		return nil, harbor.ErrShipNotRunning
	}

	bindings, err := s.bindings.ListForShip(ctx, shipID)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		b.ExpiresAt = harbor.EnsureUTC(b.ExpiresAt).Add(time.Duration(ttl) * time.Second)
		b.InitialTTL += ttl
		if err := s.bindings.Update(ctx, b); err != nil {
			return nil, err
		}
	}

	if err := s.scheduler.Recompute(ctx, shipID); err != nil {
		return nil, err
	}

	// Keep the informational TTL in step with the latest expiry.
	if expiry := ship.EffectiveExpiry(bindings); expiry != nil {
		if remaining := int(time.Until(*expiry).Seconds()); remaining > 0 {
			ship.TTL = remaining
			if err := s.ships.Update(ctx, ship); err != nil {
				return nil, err
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"ship_id":  ids.Short(shipID),
		"added":    ttl,
		"sessions": len(bindings),
	}).Info("ship ttl extended")
	return s.withExpiry(ctx, ship)
}

// Execute forwards an operation to a running ship the session is bound to.
// Python and shell executions land in the session history; every successful
// operation refreshes the session's lease on the ship.
func (s *Service) Execute(ctx context.Context, sessionID, shipID string, req *ExecRequest) (*ExecResponse, error) {
	ship, err := s.boundRunningShip(ctx, sessionID, shipID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := s.client.Forward(ctx, ship.Address, sessionID, req.Type, req.Payload)
	elapsed := time.Since(started)
	s.metrics.RecordForward(req.Type, err == nil && resp != nil && resp.Success)
	if err != nil {
		return nil, err
	}

	if record := buildExecutionRecord(sessionID, req, resp, elapsed); record != nil {
		// History is best-effort; a failed insert never fails the operation.
		if recErr := s.records.Create(ctx, record); recErr != nil {
			s.log.WithError(recErr).Warn("failed to record execution")
		} else {
			resp.ExecutionID = record.ID
		}
	}

	if resp.Success {
		s.refreshAfterOperation(ctx, sessionID, ship.ID)
	}
	return resp, nil
}

// GetLogs returns the container logs of a ship the session is bound to.
func (s *Service) GetLogs(ctx context.Context, sessionID, shipID string) (string, error) {
	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		return "", err
	}
	if sessionID != "" {
		if err := s.checkAccess(ctx, sessionID, shipID); err != nil {
			return "", err
		}
	}
	if ship.ContainerID == "" {
		return "", harbor.ErrShipNotRunning
	}
	return s.driver.GetContainerLogs(ctx, ship.ContainerID)
}

// Upload pushes a file into a running ship the session is bound to. size is
// the declared content length; anything above the configured cap is rejected
// before any bytes move.
func (s *Service) Upload(ctx context.Context, sessionID, shipID, filePath, fileName string, size int64, content io.Reader) (*UploadResponse, error) {
	if size > s.cfg.MaxUploadSize {
		return nil, harbor.ErrUploadTooLarge
	}

	ship, err := s.boundRunningShip(ctx, sessionID, shipID)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Upload(ctx, ship.Address, sessionID, filePath, fileName, io.LimitReader(content, s.cfg.MaxUploadSize+1))
	s.metrics.RecordForward("upload", err == nil && resp != nil && resp.Success)
	if err != nil {
		return nil, err
	}
	if resp.Success {
		s.refreshAfterOperation(ctx, sessionID, ship.ID)
	}
	return resp, nil
}

// Download pulls a file out of a running ship the session is bound to. The
// downstream HTTP status is passed through so the API can distinguish a
// missing file from a path violation.
func (s *Service) Download(ctx context.Context, sessionID, shipID, filePath string) ([]byte, int, error) {
	ship, err := s.boundRunningShip(ctx, sessionID, shipID)
	if err != nil {
		return nil, 0, err
	}

	data, status, err := s.client.Download(ctx, ship.Address, sessionID, filePath)
	s.metrics.RecordForward("download", err == nil)
	if err != nil {
		return nil, status, err
	}
	s.refreshAfterOperation(ctx, sessionID, ship.ID)
	return data, status, nil
}

// boundRunningShip loads a ship and verifies the session may use it and the
// ship is forwardable.
func (s *Service) boundRunningShip(ctx context.Context, sessionID, shipID string) (*harbor.Ship, error) {
	ship, err := s.ships.Get(ctx, shipID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(ctx, sessionID, shipID); err != nil {
		return nil, err
	}
	if !ship.IsRunning() {
		return nil, harbor.ErrShipNotRunning
	}
	if ship.Address == "" {
		return nil, harbor.ErrAddressUnavailable
	}
	return ship, nil
}

// refreshAfterOperation renews the session's lease after a successful
// forwarded operation and re-arms the cleanup timer.
func (s *Service) refreshAfterOperation(ctx context.Context, sessionID, shipID string) {
	binding, err := s.bindings.Get(ctx, sessionID, shipID)
	if err != nil || binding == nil {
		return
	}
	binding.Refresh(time.Now())
	if err := s.bindings.Update(ctx, binding); err != nil {
		s.log.WithError(err).Warn("failed to refresh binding after operation")
		return
	}
	if err := s.scheduler.Recompute(ctx, shipID); err != nil {
		s.log.WithError(err).Warn("failed to reschedule cleanup after operation")
	}
}

// refreshBinding renews the session's binding for a ship, creating one when
// the session has none yet.
func (s *Service) refreshBinding(ctx context.Context, sessionID, shipID string, ttl int) error {
	binding, err := s.bindings.Get(ctx, sessionID, shipID)
	if err != nil {
		return err
	}
	if binding == nil {
		if err := s.bindings.Create(ctx, harbor.NewBinding(sessionID, shipID, ttl)); err != nil {
			return err
		}
	} else {
		binding.InitialTTL = ttl
		binding.Refresh(time.Now())
		if err := s.bindings.Update(ctx, binding); err != nil {
			return err
		}
	}
	return s.scheduler.Recompute(ctx, shipID)
}

// checkAccess verifies the session holds a binding for the ship.
func (s *Service) checkAccess(ctx context.Context, sessionID, shipID string) error {
	binding, err := s.bindings.Get(ctx, sessionID, shipID)
	if err != nil {
		return err
	}
	if binding == nil {
		return harbor.ErrAccessDenied
	}
	return nil
}

func (s *Service) defaultSpec() *harbor.ShipSpec {
	return &harbor.ShipSpec{
		CPUs:   s.cfg.DefaultCPUs,
		Memory: s.cfg.DefaultMemory,
	}
}

func (s *Service) withExpiry(ctx context.Context, ship *harbor.Ship) (*harbor.Ship, error) {
	bindings, err := s.bindings.ListForShip(ctx, ship.ID)
	if err != nil {
		return nil, err
	}
	ship.ExpiresAt = ship.EffectiveExpiry(bindings)
	return ship, nil
}

func (s *Service) withExpiries(ctx context.Context, ships []*harbor.Ship) ([]*harbor.Ship, error) {
	for _, ship := range ships {
		if _, err := s.withExpiry(ctx, ship); err != nil {
			return nil, err
		}
	}
	return ships, nil
}

// buildExecutionRecord maps recordable operation types to a history entry.
// Only python and shell executions are recorded.
func buildExecutionRecord(sessionID string, req *ExecRequest, resp *ExecResponse, elapsed time.Duration) *harbor.ExecutionRecord {
	switch req.Type {
	case "ipython/exec":
		record := harbor.NewExecutionRecord(sessionID, harbor.ExecTypePython)
		record.Code, _ = req.Payload["code"].(string)
		record.Success = resp.Success
		record.ExecutionTimeMS = elapsed.Milliseconds()
		return record
	case "shell/exec":
		record := harbor.NewExecutionRecord(sessionID, harbor.ExecTypeShell)
		record.Command, _ = req.Payload["command"].(string)
		record.Success = resp.Success
		record.ExecutionTimeMS = elapsed.Milliseconds()
		return record
	default:
		return nil
	}
}

// IsNotFound reports whether err maps to a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, harbor.ErrShipNotFound) ||
		errors.Is(err, harbor.ErrSessionNotFound) ||
		errors.Is(err, harbor.ErrRecordNotFound)
}
