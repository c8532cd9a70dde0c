package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// BindingRepositoryGORM implements harbor.BindingRepository using GORM
type BindingRepositoryGORM struct {
	db *gorm.DB
}

// NewBindingRepository creates a new GORM-based binding repository
func NewBindingRepository(db *gorm.DB) *BindingRepositoryGORM {
	return &BindingRepositoryGORM{db: db}
}

// Create inserts a new session-ship binding
func (r *BindingRepositoryGORM) Create(ctx context.Context, binding *harbor.Binding) error {
	if err := r.db.WithContext(ctx).Create(bindingToModel(binding)).Error; err != nil {
		return fmt.Errorf("failed to insert binding: %w", err)
	}
	return nil
}

// Get retrieves the binding for a (session, ship) pair, or nil
func (r *BindingRepositoryGORM) Get(ctx context.Context, sessionID, shipID string) (*harbor.Binding, error) {
	var model BindingModel
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND ship_id = ?", sessionID, shipID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query binding: %w", err)
	}
	return bindingFromModel(&model), nil
}

// GetBySession retrieves the binding for a session id, or nil
func (r *BindingRepositoryGORM) GetBySession(ctx context.Context, sessionID string) (*harbor.Binding, error) {
	var model BindingModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("last_activity DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query binding: %w", err)
	}
	return bindingFromModel(&model), nil
}

// Update saves the full binding row
func (r *BindingRepositoryGORM) Update(ctx context.Context, binding *harbor.Binding) error {
	model := bindingToModel(binding)
	result := r.db.WithContext(ctx).Model(&BindingModel{}).Where("id = ?", binding.ID).
		Updates(map[string]interface{}{
			"last_activity": model.LastActivity,
			"expires_at":    model.ExpiresAt,
			"initial_ttl":   model.InitialTTL,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update binding: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return harbor.ErrSessionNotFound
	}
	return nil
}

// ListForShip returns all bindings for a ship
func (r *BindingRepositoryGORM) ListForShip(ctx context.Context, shipID string) ([]*harbor.Binding, error) {
	var models []BindingModel
	err := r.db.WithContext(ctx).Where("ship_id = ?", shipID).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings for ship: %w", err)
	}
	return bindingsFromModels(models), nil
}

// ListAll returns every binding
func (r *BindingRepositoryGORM) ListAll(ctx context.Context) ([]*harbor.Binding, error) {
	var models []BindingModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	return bindingsFromModels(models), nil
}

// TouchActivity sets last_activity to now for the (session, ship) pair
func (r *BindingRepositoryGORM) TouchActivity(ctx context.Context, sessionID, shipID string) error {
	result := r.db.WithContext(ctx).Model(&BindingModel{}).
		Where("session_id = ? AND ship_id = ?", sessionID, shipID).
		Update("last_activity", time.Now().UTC())
	if result.Error != nil {
		return fmt.Errorf("failed to touch binding activity: %w", result.Error)
	}
	return nil
}

// ExtendSession sets the session's expiry to now+ttl seconds and returns the
// updated binding
func (r *BindingRepositoryGORM) ExtendSession(ctx context.Context, sessionID string, ttl int) (*harbor.Binding, error) {
	binding, err := r.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, harbor.ErrSessionNotFound
	}

	now := time.Now().UTC()
	binding.LastActivity = now
	binding.ExpiresAt = now.Add(time.Duration(ttl) * time.Second)
	if err := r.Update(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// DeleteForShip removes every binding for the ship and returns the session
// ids that were bound
func (r *BindingRepositoryGORM) DeleteForShip(ctx context.Context, shipID string) ([]string, error) {
	var models []BindingModel
	err := r.db.WithContext(ctx).Where("ship_id = ?", shipID).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings for ship: %w", err)
	}

	sessionIDs := make([]string, 0, len(models))
	for i := range models {
		sessionIDs = append(sessionIDs, models[i].SessionID)
	}

	if len(models) > 0 {
		if err := r.db.WithContext(ctx).Where("ship_id = ?", shipID).Delete(&BindingModel{}).Error; err != nil {
			return nil, fmt.Errorf("failed to delete bindings for ship: %w", err)
		}
	}
	return sessionIDs, nil
}

// DeleteBySession removes the binding for a session id
func (r *BindingRepositoryGORM) DeleteBySession(ctx context.Context, sessionID string) error {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&BindingModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete binding: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return harbor.ErrSessionNotFound
	}
	return nil
}

// ExpireForShip clamps expiry to now for every currently-active binding of
// the ship and returns how many were clamped
func (r *BindingRepositoryGORM) ExpireForShip(ctx context.Context, shipID string) (int, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&BindingModel{}).
		Where("ship_id = ? AND expires_at > ?", shipID, now).
		Update("expires_at", now)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire bindings for ship: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func bindingsFromModels(models []BindingModel) []*harbor.Binding {
	bindings := make([]*harbor.Binding, 0, len(models))
	for i := range models {
		bindings = append(bindings, bindingFromModel(&models[i]))
	}
	return bindings
}
