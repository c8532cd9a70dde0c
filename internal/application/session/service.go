package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// Service manages session bindings and the per-session execution history.
type Service struct {
	bindings  harbor.BindingRepository
	records   harbor.ExecutionRecordRepository
	scheduler *ship.CleanupScheduler
	log       *logrus.Entry
}

func NewService(
	bindings harbor.BindingRepository,
	records harbor.ExecutionRecordRepository,
	scheduler *ship.CleanupScheduler,
	log *logrus.Logger,
) *Service {
	return &Service{
		bindings:  bindings,
		records:   records,
		scheduler: scheduler,
		log:       log.WithField("component", "session-service"),
	}
}

// List returns every session binding.
func (s *Service) List(ctx context.Context) ([]*harbor.Binding, error) {
	return s.bindings.ListAll(ctx)
}

// Get returns the binding for a session id.
func (s *Service) Get(ctx context.Context, sessionID string) (*harbor.Binding, error) {
	binding, err := s.bindings.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, harbor.ErrSessionNotFound
	}
	return binding, nil
}

// ListForShip returns every session bound to a ship.
func (s *Service) ListForShip(ctx context.Context, shipID string) ([]*harbor.Binding, error) {
	return s.bindings.ListForShip(ctx, shipID)
}

// ExtendTTL moves the session's expiry to now+ttl and re-arms the ship's
// cleanup timer for the new horizon.
func (s *Service) ExtendTTL(ctx context.Context, sessionID string, ttl int) (*harbor.Binding, error) {
	binding, err := s.bindings.ExtendSession(ctx, sessionID, ttl)
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.Recompute(ctx, binding.ShipID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"ttl":        ttl,
	}).Info("session ttl extended")
	return binding, nil
}

// Terminate removes the session's binding. The bound ship keeps running
// until its remaining bindings expire; with none left the cleanup timer
// fires immediately.
func (s *Service) Terminate(ctx context.Context, sessionID string) error {
	binding, err := s.bindings.GetBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if binding == nil {
		return harbor.ErrSessionNotFound
	}

	if err := s.bindings.DeleteBySession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.scheduler.Recompute(ctx, binding.ShipID); err != nil {
		return err
	}

	s.log.WithField("session_id", sessionID).Info("session terminated")
	return nil
}

// History returns the filtered execution history page plus the total count.
func (s *Service) History(ctx context.Context, sessionID string, filter harbor.ExecutionRecordFilter) ([]*harbor.ExecutionRecord, int64, error) {
	return s.records.Query(ctx, sessionID, filter)
}

// HistoryEntry returns one record, verifying it belongs to the session.
func (s *Service) HistoryEntry(ctx context.Context, sessionID, recordID string) (*harbor.ExecutionRecord, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.SessionID != sessionID {
		return nil, harbor.ErrRecordNotFound
	}
	return record, nil
}

// LastExecution returns the most recent record for the session, optionally
// narrowed to one exec type.
func (s *Service) LastExecution(ctx context.Context, sessionID, execType string) (*harbor.ExecutionRecord, error) {
	return s.records.Last(ctx, sessionID, execType)
}

// Annotate sets the description, tags, and notes of a history entry. Nil
// fields keep their stored value.
func (s *Service) Annotate(ctx context.Context, sessionID, recordID string, description, tags, notes *string) (*harbor.ExecutionRecord, error) {
	record, err := s.HistoryEntry(ctx, sessionID, recordID)
	if err != nil {
		return nil, err
	}

	if description != nil {
		record.Description = *description
	}
	if tags != nil {
		record.Tags = *tags
	}
	if notes != nil {
		record.Notes = *notes
	}
	if err := s.records.Annotate(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// IsActive reports whether a binding's expiry is still in the future.
func IsActive(b *harbor.Binding) bool {
	return b.Active(time.Now())
}
