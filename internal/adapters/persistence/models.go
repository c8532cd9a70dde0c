package persistence

import (
	"time"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// ShipModel represents the ships table
type ShipModel struct {
	ID          string    `gorm:"column:id;primaryKey;not null"`
	Status      int       `gorm:"column:status;not null;index"` // 0: stopped, 1: running, 2: creating
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
	ContainerID *string   `gorm:"column:container_id"`
	Address     *string   `gorm:"column:address"`
	TTL         int       `gorm:"column:ttl;not null"`
}

func (ShipModel) TableName() string {
	return "ships"
}

// BindingModel represents the session_ships table
type BindingModel struct {
	ID           string     `gorm:"column:id;primaryKey;not null"`
	SessionID    string     `gorm:"column:session_id;not null;index"`
	ShipID       string     `gorm:"column:ship_id;not null;index"`
	Ship         *ShipModel `gorm:"foreignKey:ShipID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	LastActivity time.Time  `gorm:"column:last_activity;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	InitialTTL   int        `gorm:"column:initial_ttl;not null"`
}

func (BindingModel) TableName() string {
	return "session_ships"
}

// ExecutionRecordModel represents the execution_history table
type ExecutionRecordModel struct {
	ID              string    `gorm:"column:id;primaryKey;not null"`
	SessionID       string    `gorm:"column:session_id;not null;index"`
	ExecType        string    `gorm:"column:exec_type;not null"`
	Code            *string   `gorm:"column:code;type:text"`
	Command         *string   `gorm:"column:command;type:text"`
	Success         bool      `gorm:"column:success;not null"`
	ExecutionTimeMS *int64    `gorm:"column:execution_time_ms"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	Description     *string   `gorm:"column:description;type:text"`
	Tags            *string   `gorm:"column:tags;type:text"`
	Notes           *string   `gorm:"column:notes;type:text"`
}

func (ExecutionRecordModel) TableName() string {
	return "execution_history"
}

func shipToModel(s *harbor.Ship) *ShipModel {
	m := &ShipModel{
		ID:        s.ID,
		Status:    int(s.Status),
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
		TTL:       s.TTL,
	}
	if s.ContainerID != "" {
		m.ContainerID = &s.ContainerID
	}
	if s.Address != "" {
		m.Address = &s.Address
	}
	return m
}

func shipFromModel(m *ShipModel) *harbor.Ship {
	s := &harbor.Ship{
		ID:        m.ID,
		Status:    harbor.ShipStatus(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
		TTL:       m.TTL,
	}
	if m.ContainerID != nil {
		s.ContainerID = *m.ContainerID
	}
	if m.Address != nil {
		s.Address = *m.Address
	}
	return s
}

func bindingToModel(b *harbor.Binding) *BindingModel {
	return &BindingModel{
		ID:           b.ID,
		SessionID:    b.SessionID,
		ShipID:       b.ShipID,
		CreatedAt:    b.CreatedAt.UTC(),
		LastActivity: b.LastActivity.UTC(),
		ExpiresAt:    b.ExpiresAt.UTC(),
		InitialTTL:   b.InitialTTL,
	}
}

func bindingFromModel(m *BindingModel) *harbor.Binding {
	return &harbor.Binding{
		ID:           m.ID,
		SessionID:    m.SessionID,
		ShipID:       m.ShipID,
		CreatedAt:    m.CreatedAt.UTC(),
		LastActivity: m.LastActivity.UTC(),
		ExpiresAt:    m.ExpiresAt.UTC(),
		InitialTTL:   m.InitialTTL,
	}
}

func recordToModel(r *harbor.ExecutionRecord) *ExecutionRecordModel {
	m := &ExecutionRecordModel{
		ID:        r.ID,
		SessionID: r.SessionID,
		ExecType:  r.ExecType,
		Success:   r.Success,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.Code != "" {
		m.Code = &r.Code
	}
	if r.Command != "" {
		m.Command = &r.Command
	}
	if r.ExecutionTimeMS > 0 {
		m.ExecutionTimeMS = &r.ExecutionTimeMS
	}
	if r.Description != "" {
		m.Description = &r.Description
	}
	if r.Tags != "" {
		m.Tags = &r.Tags
	}
	if r.Notes != "" {
		m.Notes = &r.Notes
	}
	return m
}

func recordFromModel(m *ExecutionRecordModel) *harbor.ExecutionRecord {
	r := &harbor.ExecutionRecord{
		ID:        m.ID,
		SessionID: m.SessionID,
		ExecType:  m.ExecType,
		Success:   m.Success,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.Code != nil {
		r.Code = *m.Code
	}
	if m.Command != nil {
		r.Command = *m.Command
	}
	if m.ExecutionTimeMS != nil {
		r.ExecutionTimeMS = *m.ExecutionTimeMS
	}
	if m.Description != nil {
		r.Description = *m.Description
	}
	if m.Tags != nil {
		r.Tags = *m.Tags
	}
	if m.Notes != nil {
		r.Notes = *m.Notes
	}
	return r
}
