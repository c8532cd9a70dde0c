package harbor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

func TestShip_Lifecycle(t *testing.T) {
	s := harbor.NewShip(60)
	assert.Equal(t, harbor.StatusCreating, s.Status)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.IsRunning())

	s.MarkRunning("container-1", "172.18.0.2")
	assert.True(t, s.IsRunning())
	assert.Equal(t, "container-1", s.ContainerID)
	assert.Equal(t, "172.18.0.2", s.Address)

	// Stopping clears the handle and address but keeps the identity
	s.MarkStopped()
	assert.Equal(t, harbor.StatusStopped, s.Status)
	assert.Empty(t, s.ContainerID)
	assert.Empty(t, s.Address)
	assert.NotEmpty(t, s.ID)
}

func TestShipStatus_String(t *testing.T) {
	assert.Equal(t, "stopped", harbor.StatusStopped.String())
	assert.Equal(t, "running", harbor.StatusRunning.String())
	assert.Equal(t, "creating", harbor.StatusCreating.String())
	assert.Equal(t, "unknown", harbor.ShipStatus(99).String())
}

func TestShip_EffectiveExpiry(t *testing.T) {
	s := harbor.NewShip(60)
	s.MarkRunning("container-1", "172.18.0.2")

	early := harbor.NewBinding("session-a", s.ID, 60)
	late := harbor.NewBinding("session-b", s.ID, 3600)

	expiry := s.EffectiveExpiry([]*harbor.Binding{early, late})
	require.NotNil(t, expiry)
	assert.Equal(t, harbor.EnsureUTC(late.ExpiresAt), *expiry, "the furthest lease wins")

	// No bindings, no expiry
	assert.Nil(t, s.EffectiveExpiry(nil))

	// Stopped ships have no expiry even with bindings
	s.MarkStopped()
	assert.Nil(t, s.EffectiveExpiry([]*harbor.Binding{late}))
}

func TestBinding_ActiveAndRefresh(t *testing.T) {
	b := harbor.NewBinding("session-a", "ship-1", 60)
	now := time.Now()

	assert.True(t, b.Active(now))
	assert.False(t, b.Active(now.Add(2*time.Minute)))

	// Refresh moves the expiry to now+InitialTTL
	later := now.Add(45 * time.Second)
	b.Refresh(later)
	assert.True(t, b.Active(later.Add(59*time.Second)))
	assert.False(t, b.Active(later.Add(61*time.Second)))
	assert.Equal(t, later.UTC(), b.LastActivity)
}
