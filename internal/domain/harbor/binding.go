package harbor

import (
	"time"

	"github.com/google/uuid"
)

// Binding links a session to a ship with an absolute expiry.
//
// Each session is bound to at most one Running ship at a time. Every
// successful forwarded operation refreshes ExpiresAt to now+InitialTTL.
type Binding struct {
	ID           string
	SessionID    string
	ShipID       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	// InitialTTL is the refresh quantum in seconds.
	InitialTTL int
}

// NewBinding binds sessionID to shipID for ttl seconds from now.
func NewBinding(sessionID, shipID string, ttl int) *Binding {
	now := time.Now().UTC()
	return &Binding{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ShipID:       shipID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(time.Duration(ttl) * time.Second),
		InitialTTL:   ttl,
	}
}

// Active reports whether the binding's expiry is still in the future.
func (b *Binding) Active(now time.Time) bool {
	return EnsureUTC(b.ExpiresAt).After(now.UTC())
}

// Refresh sets the expiry to now+InitialTTL and bumps LastActivity.
func (b *Binding) Refresh(now time.Time) {
	now = now.UTC()
	b.LastActivity = now
	b.ExpiresAt = now.Add(time.Duration(b.InitialTTL) * time.Second)
}

// EnsureUTC normalizes a timestamp read back from the store to UTC.
// SQLite round-trips timezone-naive values; comparing those against
// time.Now().UTC() without normalization is a recurring bug source.
func EnsureUTC(t time.Time) time.Time {
	return t.UTC()
}
