package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// ShipRepositoryGORM implements harbor.ShipRepository using GORM
type ShipRepositoryGORM struct {
	db *gorm.DB
}

// NewShipRepository creates a new GORM-based ship repository
func NewShipRepository(db *gorm.DB) *ShipRepositoryGORM {
	return &ShipRepositoryGORM{db: db}
}

// Create inserts a new ship row
func (r *ShipRepositoryGORM) Create(ctx context.Context, ship *harbor.Ship) error {
	if err := r.db.WithContext(ctx).Create(shipToModel(ship)).Error; err != nil {
		return fmt.Errorf("failed to insert ship: %w", err)
	}
	return nil
}

// Get retrieves a ship by ID
func (r *ShipRepositoryGORM) Get(ctx context.Context, shipID string) (*harbor.Ship, error) {
	var model ShipModel
	err := r.db.WithContext(ctx).Where("id = ?", shipID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, harbor.ErrShipNotFound
		}
		return nil, fmt.Errorf("failed to query ship: %w", err)
	}
	return shipFromModel(&model), nil
}

// Update saves the full ship row, bumping updated_at
func (r *ShipRepositoryGORM) Update(ctx context.Context, ship *harbor.Ship) error {
	ship.UpdatedAt = time.Now().UTC()
	model := shipToModel(ship)
	// Save with a map so cleared handle/address columns are written as NULL
	result := r.db.WithContext(ctx).Model(&ShipModel{}).Where("id = ?", ship.ID).
		Updates(map[string]interface{}{
			"status":       model.Status,
			"updated_at":   model.UpdatedAt,
			"container_id": model.ContainerID,
			"address":      model.Address,
			"ttl":          model.TTL,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update ship: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return harbor.ErrShipNotFound
	}
	return nil
}

// Delete permanently removes the ship row
func (r *ShipRepositoryGORM) Delete(ctx context.Context, shipID string) error {
	result := r.db.WithContext(ctx).Where("id = ?", shipID).Delete(&ShipModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete ship: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return harbor.ErrShipNotFound
	}
	return nil
}

// ListActive returns ships in Running or Creating
func (r *ShipRepositoryGORM) ListActive(ctx context.Context) ([]*harbor.Ship, error) {
	var models []ShipModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []int{int(harbor.StatusRunning), int(harbor.StatusCreating)}).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active ships: %w", err)
	}
	return shipsFromModels(models), nil
}

// ListAll returns every ship, newest first
func (r *ShipRepositoryGORM) ListAll(ctx context.Context) ([]*harbor.Ship, error) {
	var models []ShipModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ships: %w", err)
	}
	return shipsFromModels(models), nil
}

// CountActive counts ships in Running or Creating
func (r *ShipRepositoryGORM) CountActive(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ShipModel{}).
		Where("status IN ?", []int{int(harbor.StatusRunning), int(harbor.StatusCreating)}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active ships: %w", err)
	}
	return int(count), nil
}

// FindActiveForSession returns the Running ship bound to the session,
// most recently updated first, or nil when there is none.
func (r *ShipRepositoryGORM) FindActiveForSession(ctx context.Context, sessionID string) (*harbor.Ship, error) {
	return r.findForSessionByStatus(ctx, sessionID, harbor.StatusRunning)
}

// FindStoppedForSession returns the most recently updated Stopped ship the
// session owns, or nil.
func (r *ShipRepositoryGORM) FindStoppedForSession(ctx context.Context, sessionID string) (*harbor.Ship, error) {
	return r.findForSessionByStatus(ctx, sessionID, harbor.StatusStopped)
}

func (r *ShipRepositoryGORM) findForSessionByStatus(ctx context.Context, sessionID string, status harbor.ShipStatus) (*harbor.Ship, error) {
	var model ShipModel
	err := r.db.WithContext(ctx).
		Joins("JOIN session_ships ON session_ships.ship_id = ships.id").
		Where("session_ships.session_id = ? AND ships.status = ?", sessionID, int(status)).
		Order("ships.updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session ship: %w", err)
	}
	return shipFromModel(&model), nil
}

// FindWarmPoolShip returns the oldest Running ship with no binding, or nil.
func (r *ShipRepositoryGORM) FindWarmPoolShip(ctx context.Context) (*harbor.Ship, error) {
	var model ShipModel
	err := r.warmPoolQuery(ctx).Order("ships.created_at ASC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query warm pool: %w", err)
	}
	return shipFromModel(&model), nil
}

// CountWarmPoolShips counts Running ships with no binding
func (r *ShipRepositoryGORM) CountWarmPoolShips(ctx context.Context) (int, error) {
	var count int64
	err := r.warmPoolQuery(ctx).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count warm pool: %w", err)
	}
	return int(count), nil
}

func (r *ShipRepositoryGORM) warmPoolQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&ShipModel{}).
		Joins("LEFT JOIN session_ships ON session_ships.ship_id = ships.id").
		Where("ships.status = ? AND session_ships.id IS NULL", int(harbor.StatusRunning))
}

func shipsFromModels(models []ShipModel) []*harbor.Ship {
	ships := make([]*harbor.Ship, 0, len(models))
	for i := range models {
		ships = append(ships, shipFromModel(&models[i]))
	}
	return ships
}
