package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

func TestDefaults_ShipTimings(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 60*time.Second, cfg.Ship.HealthCheckTimeout)
	assert.Equal(t, 2*time.Second, cfg.Ship.HealthCheckInterval)
	assert.Equal(t, 60*time.Second, cfg.Ship.StatusCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.Ship.ExecTimeout)
	assert.Equal(t, 120*time.Second, cfg.Ship.TransferTimeout)
}

func TestDefaults_PreserveExplicitValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.Ship.StatusCheckInterval = 5 * time.Second
	config.SetDefaults(cfg)

	assert.Equal(t, 5*time.Second, cfg.Ship.StatusCheckInterval)
}
