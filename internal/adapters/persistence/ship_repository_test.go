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

func TestShipRepository_CreateAndGet(t *testing.T) {
	// Arrange
	db := helpers.NewTestDB(t)
	repo := persistence.NewShipRepository(db)
	ship := harbor.NewShip(600)

	// Act
	err := repo.Create(context.Background(), ship)
	require.NoError(t, err)
	loaded, err := repo.Get(context.Background(), ship.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ship.ID, loaded.ID)
	assert.Equal(t, harbor.StatusCreating, loaded.Status)
	assert.Equal(t, 600, loaded.TTL)
}

func TestShipRepository_GetMissing(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewShipRepository(db)

	_, err := repo.Get(context.Background(), "no-such-ship")

	assert.ErrorIs(t, err, harbor.ErrShipNotFound)
}

func TestShipRepository_UpdateTransitions(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewShipRepository(db)
	ship := harbor.NewShip(600)
	require.NoError(t, repo.Create(context.Background(), ship))

	ship.MarkRunning("container-1", "172.18.0.5")
	require.NoError(t, repo.Update(context.Background(), ship))

	loaded, err := repo.Get(context.Background(), ship.ID)
	require.NoError(t, err)
	assert.Equal(t, harbor.StatusRunning, loaded.Status)
	assert.Equal(t, "container-1", loaded.ContainerID)
	assert.Equal(t, "172.18.0.5", loaded.Address)

	// Stopping clears the handle and address all the way to the row
	ship.MarkStopped()
	require.NoError(t, repo.Update(context.Background(), ship))

	loaded, err = repo.Get(context.Background(), ship.ID)
	require.NoError(t, err)
	assert.Equal(t, harbor.StatusStopped, loaded.Status)
	assert.Empty(t, loaded.ContainerID)
	assert.Empty(t, loaded.Address)
}

func TestShipRepository_UpdateMissing(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewShipRepository(db)

	ghost := harbor.NewShip(60)
	err := repo.Update(context.Background(), ghost)

	assert.ErrorIs(t, err, harbor.ErrShipNotFound)
}

func TestShipRepository_CountActive(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewShipRepository(db)
	ctx := context.Background()

	running := harbor.NewShip(60)
	running.MarkRunning("c1", "10.0.0.1")
	creating := harbor.NewShip(60)
	stopped := harbor.NewShip(60)
	stopped.MarkStopped()

	for _, s := range []*harbor.Ship{running, creating, stopped} {
		require.NoError(t, repo.Create(ctx, s))
	}

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestShipRepository_FindForSession(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	bindings := persistence.NewBindingRepository(db)
	ctx := context.Background()

	ship := harbor.NewShip(60)
	ship.MarkRunning("c1", "10.0.0.1")
	require.NoError(t, ships.Create(ctx, ship))
	require.NoError(t, bindings.Create(ctx, harbor.NewBinding("session-a", ship.ID, 60)))

	found, err := ships.FindActiveForSession(ctx, "session-a")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ship.ID, found.ID)

	// Another session sees nothing
	found, err = ships.FindActiveForSession(ctx, "session-b")
	require.NoError(t, err)
	assert.Nil(t, found)

	// After stopping, the active lookup misses and the stopped lookup hits
	ship.MarkStopped()
	require.NoError(t, ships.Update(ctx, ship))

	found, err = ships.FindActiveForSession(ctx, "session-a")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = ships.FindStoppedForSession(ctx, "session-a")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ship.ID, found.ID)
}

func TestShipRepository_WarmPool(t *testing.T) {
	db := helpers.NewTestDB(t)
	ships := persistence.NewShipRepository(db)
	bindings := persistence.NewBindingRepository(db)
	ctx := context.Background()

	// Oldest unbound running ship should win
	older := harbor.NewShip(60)
	older.MarkRunning("c1", "10.0.0.1")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := harbor.NewShip(60)
	newer.MarkRunning("c2", "10.0.0.2")
	bound := harbor.NewShip(60)
	bound.MarkRunning("c3", "10.0.0.3")

	for _, s := range []*harbor.Ship{older, newer, bound} {
		require.NoError(t, ships.Create(ctx, s))
	}
	require.NoError(t, bindings.Create(ctx, harbor.NewBinding("session-a", bound.ID, 60)))

	count, err := ships.CountWarmPoolShips(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	warm, err := ships.FindWarmPoolShip(ctx)
	require.NoError(t, err)
	require.NotNil(t, warm)
	assert.Equal(t, older.ID, warm.ID)
}

func TestShipRepository_Delete(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewShipRepository(db)
	ctx := context.Background()

	ship := harbor.NewShip(60)
	require.NoError(t, repo.Create(ctx, ship))

	require.NoError(t, repo.Delete(ctx, ship.ID))
	assert.ErrorIs(t, repo.Delete(ctx, ship.ID), harbor.ErrShipNotFound)
}
