package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

const defaultHistoryPageSize = 50

// ExecutionRecordRepositoryGORM implements harbor.ExecutionRecordRepository
// using GORM
type ExecutionRecordRepositoryGORM struct {
	db *gorm.DB
}

// NewExecutionRecordRepository creates a new GORM-based execution history
// repository
func NewExecutionRecordRepository(db *gorm.DB) *ExecutionRecordRepositoryGORM {
	return &ExecutionRecordRepositoryGORM{db: db}
}

// Create appends a new execution record
func (r *ExecutionRecordRepositoryGORM) Create(ctx context.Context, record *harbor.ExecutionRecord) error {
	if err := r.db.WithContext(ctx).Create(recordToModel(record)).Error; err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID
func (r *ExecutionRecordRepositoryGORM) Get(ctx context.Context, recordID string) (*harbor.ExecutionRecord, error) {
	var model ExecutionRecordModel
	err := r.db.WithContext(ctx).Where("id = ?", recordID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, harbor.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query execution record: %w", err)
	}
	return recordFromModel(&model), nil
}

// Query returns the filtered page for a session plus the total match count
func (r *ExecutionRecordRepositoryGORM) Query(
	ctx context.Context,
	sessionID string,
	filter harbor.ExecutionRecordFilter,
) ([]*harbor.ExecutionRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&ExecutionRecordModel{}).
		Where("session_id = ?", sessionID)

	if filter.ExecType != "" {
		q = q.Where("exec_type = ?", filter.ExecType)
	}
	if filter.SuccessOnly {
		q = q.Where("success = ?", true)
	}
	if filter.TagContains != "" {
		q = q.Where("tags LIKE ?", "%"+filter.TagContains+"%")
	}
	if filter.HasNotes {
		q = q.Where("notes IS NOT NULL AND notes != ''")
	}
	if filter.HasDescription {
		q = q.Where("description IS NOT NULL AND description != ''")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count execution records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryPageSize
	}

	var models []ExecutionRecordModel
	err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query execution records: %w", err)
	}

	records := make([]*harbor.ExecutionRecord, 0, len(models))
	for i := range models {
		records = append(records, recordFromModel(&models[i]))
	}
	return records, total, nil
}

// Last returns the most recent record for the session, optionally narrowed
// by exec type
func (r *ExecutionRecordRepositoryGORM) Last(ctx context.Context, sessionID, execType string) (*harbor.ExecutionRecord, error) {
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if execType != "" {
		q = q.Where("exec_type = ?", execType)
	}

	var model ExecutionRecordModel
	err := q.Order("created_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, harbor.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query last execution record: %w", err)
	}
	return recordFromModel(&model), nil
}

// Annotate updates only the annotation fields of an existing record
func (r *ExecutionRecordRepositoryGORM) Annotate(ctx context.Context, record *harbor.ExecutionRecord) error {
	model := recordToModel(record)
	result := r.db.WithContext(ctx).Model(&ExecutionRecordModel{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"description": model.Description,
			"tags":        model.Tags,
			"notes":       model.Notes,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to annotate execution record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return harbor.ErrRecordNotFound
	}
	return nil
}
