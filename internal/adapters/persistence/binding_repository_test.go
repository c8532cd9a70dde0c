package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-dev/harbor/internal/adapters/persistence"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/test/helpers"
)

func seedShip(t *testing.T, ships *persistence.ShipRepositoryGORM) *harbor.Ship {
	t.Helper()
	ship := harbor.NewShip(60)
	ship.MarkRunning("c-"+ship.ID[:8], "10.0.0.1")
	require.NoError(t, ships.Create(context.Background(), ship))
	return ship
}

func TestBindingRepository_CreateAndGet(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	repo := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := seedShip(t, ships)
	binding := harbor.NewBinding("session-a", ship.ID, 120)
	require.NoError(t, repo.Create(ctx, binding))

	loaded, err := repo.Get(ctx, "session-a", ship.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, binding.ID, loaded.ID)
	assert.Equal(t, 120, loaded.InitialTTL)
	assert.True(t, loaded.Active(time.Now()))

	missing, err := repo.Get(ctx, "session-b", ship.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBindingRepository_ExtendSession(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	repo := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := seedShip(t, ships)
	require.NoError(t, repo.Create(ctx, harbor.NewBinding("session-a", ship.ID, 10)))

	extended, err := repo.ExtendSession(ctx, "session-a", 3600)
	require.NoError(t, err)

	remaining := time.Until(harbor.EnsureUTC(extended.ExpiresAt))
	assert.Greater(t, remaining, 3500*time.Second)

	_, err = repo.ExtendSession(ctx, "nobody", 3600)
	assert.ErrorIs(t, err, harbor.ErrSessionNotFound)
}

func TestBindingRepository_ExpireForShip(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	repo := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := seedShip(t, ships)
	require.NoError(t, repo.Create(ctx, harbor.NewBinding("session-a", ship.ID, 3600)))
	require.NoError(t, repo.Create(ctx, harbor.NewBinding("session-b", ship.ID, 3600)))

	expired, err := repo.ExpireForShip(ctx, ship.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	// Already-expired bindings are not clamped again
	expired, err = repo.ExpireForShip(ctx, ship.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	loaded, err := repo.Get(ctx, "session-a", ship.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Active(time.Now()))
}

func TestBindingRepository_DeleteForShip(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	repo := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := seedShip(t, ships)
	require.NoError(t, repo.Create(ctx, harbor.NewBinding("session-a", ship.ID, 60)))
	require.NoError(t, repo.Create(ctx, harbor.NewBinding("session-b", ship.ID, 60)))

	sessions, err := repo.DeleteForShip(ctx, ship.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"session-a", "session-b"}, sessions)

	remaining, err := repo.ListForShip(ctx, ship.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestBindingRepository_DeleteBySession(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	repo := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := seedShip(t, ships)
	require.NoError(t, repo.Create(ctx, harbor.NewBinding("session-a", ship.ID, 60)))

	require.NoError(t, repo.DeleteBySession(ctx, "session-a"))
	assert.ErrorIs(t, repo.DeleteBySession(ctx, "session-a"), harbor.ErrSessionNotFound)
}

func TestBindingRepository_TouchActivity(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	repo := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := seedShip(t, ships)
	binding := harbor.NewBinding("session-a", ship.ID, 60)
	binding.LastActivity = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, binding))

	require.NoError(t, repo.TouchActivity(ctx, "session-a", ship.ID))

	loaded, err := repo.Get(ctx, "session-a", ship.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), harbor.EnsureUTC(loaded.LastActivity), 5*time.Second)
}
