package harbor

import "context"

// ShipRepository is the persistence port for ships.
type ShipRepository interface {
	Create(ctx context.Context, ship *Ship) error
	Get(ctx context.Context, shipID string) (*Ship, error)
	Update(ctx context.Context, ship *Ship) error
	Delete(ctx context.Context, shipID string) error

	// ListActive returns ships in Running or Creating.
	ListActive(ctx context.Context) ([]*Ship, error)
	ListAll(ctx context.Context) ([]*Ship, error)
	CountActive(ctx context.Context) (int, error)

	// FindActiveForSession returns the Running ship bound to the session,
	// most recently updated first, or nil when there is none.
	FindActiveForSession(ctx context.Context, sessionID string) (*Ship, error)
	// FindStoppedForSession returns the most recently updated Stopped ship
	// the session owns, or nil.
	FindStoppedForSession(ctx context.Context, sessionID string) (*Ship, error)
	// FindWarmPoolShip returns the oldest Running ship with no binding at
	// all, or nil when the pool is empty.
	FindWarmPoolShip(ctx context.Context) (*Ship, error)
	CountWarmPoolShips(ctx context.Context) (int, error)
}

// BindingRepository is the persistence port for session-ship bindings.
type BindingRepository interface {
	Create(ctx context.Context, binding *Binding) error
	Get(ctx context.Context, sessionID, shipID string) (*Binding, error)
	// GetBySession returns the binding for a session id, or nil.
	GetBySession(ctx context.Context, sessionID string) (*Binding, error)
	Update(ctx context.Context, binding *Binding) error
	ListForShip(ctx context.Context, shipID string) ([]*Binding, error)
	ListAll(ctx context.Context) ([]*Binding, error)

	// TouchActivity sets last_activity to now for the (session, ship) pair.
	TouchActivity(ctx context.Context, sessionID, shipID string) error
	// ExtendSession sets the session's expiry to now+ttl seconds.
	ExtendSession(ctx context.Context, sessionID string, ttl int) (*Binding, error)
	// DeleteForShip removes every binding for the ship and returns the
	// session ids that were bound.
	DeleteForShip(ctx context.Context, shipID string) ([]string, error)
	DeleteBySession(ctx context.Context, sessionID string) error
	// ExpireForShip clamps expiry to now for every currently-active binding
	// of the ship and returns how many were clamped.
	ExpireForShip(ctx context.Context, shipID string) (int, error)
}

// ExecutionRecordFilter narrows history queries. Zero values mean "no
// constraint"; Limit defaults to a repository-chosen page size.
type ExecutionRecordFilter struct {
	ExecType       string
	SuccessOnly    bool
	TagContains    string
	HasNotes       bool
	HasDescription bool
	Limit          int
	Offset         int
}

// ExecutionRecordRepository is the persistence port for the execution
// history.
type ExecutionRecordRepository interface {
	Create(ctx context.Context, record *ExecutionRecord) error
	Get(ctx context.Context, recordID string) (*ExecutionRecord, error)
	// Query returns the filtered page plus the total match count.
	Query(ctx context.Context, sessionID string, filter ExecutionRecordFilter) ([]*ExecutionRecord, int64, error)
	// Last returns the most recent record for the session, optionally
	// narrowed by exec type.
	Last(ctx context.Context, sessionID, execType string) (*ExecutionRecord, error)
	// Annotate updates only the description, tags, and notes fields.
	Annotate(ctx context.Context, record *ExecutionRecord) error
}
