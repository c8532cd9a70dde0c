package api

import (
	"time"

	"github.com/shipyard-dev/harbor/internal/application/session"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// ShipView is the wire representation of a ship.
type ShipView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ContainerID string     `json:"container_id,omitempty"`
	Address     string     `json:"address,omitempty"`
	TTL         int        `json:"ttl"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func toShipView(s *harbor.Ship) *ShipView {
	return &ShipView{
		ID:          s.ID,
		Status:      s.Status.String(),
		ContainerID: s.ContainerID,
		Address:     s.Address,
		TTL:         s.TTL,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

func toShipViews(ships []*harbor.Ship) []*ShipView {
	views := make([]*ShipView, 0, len(ships))
	for _, s := range ships {
		views = append(views, toShipView(s))
	}
	return views
}

// SessionView is the wire representation of a session binding.
type SessionView struct {
	SessionID    string    `json:"session_id"`
	ShipID       string    `json:"ship_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	InitialTTL   int       `json:"initial_ttl"`
	IsActive     bool      `json:"is_active"`
}

func toSessionView(b *harbor.Binding) *SessionView {
	return &SessionView{
		SessionID:    b.SessionID,
		ShipID:       b.ShipID,
		CreatedAt:    b.CreatedAt,
		LastActivity: b.LastActivity,
		ExpiresAt:    harbor.EnsureUTC(b.ExpiresAt),
		InitialTTL:   b.InitialTTL,
		IsActive:     session.IsActive(b),
	}
}

func toSessionViews(bindings []*harbor.Binding) []*SessionView {
	views := make([]*SessionView, 0, len(bindings))
	for _, b := range bindings {
		views = append(views, toSessionView(b))
	}
	return views
}

// HistoryEntryView is the wire representation of an execution record.
type HistoryEntryView struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ExecType        string    `json:"exec_type"`
	Code            string    `json:"code,omitempty"`
	Command         string    `json:"command,omitempty"`
	Success         bool      `json:"success"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
	Description     string    `json:"description,omitempty"`
	Tags            string    `json:"tags,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

func toHistoryEntryView(r *harbor.ExecutionRecord) *HistoryEntryView {
	return &HistoryEntryView{
		ID:              r.ID,
		SessionID:       r.SessionID,
		ExecType:        r.ExecType,
		Code:            r.Code,
		Command:         r.Command,
		Success:         r.Success,
		ExecutionTimeMS: r.ExecutionTimeMS,
		CreatedAt:       r.CreatedAt,
		Description:     r.Description,
		Tags:            r.Tags,
		Notes:           r.Notes,
	}
}

// HistoryPageView is a filtered history page with the total match count.
type HistoryPageView struct {
	Entries []*HistoryEntryView `json:"entries"`
	Total   int64               `json:"total"`
}

func toHistoryPageView(records []*harbor.ExecutionRecord, total int64) *HistoryPageView {
	entries := make([]*HistoryEntryView, 0, len(records))
	for _, r := range records {
		entries = append(entries, toHistoryEntryView(r))
	}
	return &HistoryPageView{Entries: entries, Total: total}
}

// StatView is the public service identity answer.
type StatView struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// OverviewView is the authenticated fleet overview.
type OverviewView struct {
	Service  string        `json:"service"`
	Version  string        `json:"version"`
	Status   string        `json:"status"`
	Ships    ShipCounts    `json:"ships"`
	Sessions SessionCounts `json:"sessions"`
}

type ShipCounts struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Creating int `json:"creating"`
}

type SessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}
