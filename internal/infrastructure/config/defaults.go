package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8156
	}
	if cfg.Server.AccessToken == "" {
		cfg.Server.AccessToken = "secret-token"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "harbor.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "harbor"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "harbor"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Driver defaults
	if cfg.Driver.Type == "" {
		cfg.Driver.Type = "docker-host"
	}
	if cfg.Driver.Image == "" {
		cfg.Driver.Image = "ship:latest"
	}
	if cfg.Driver.Network == "" {
		cfg.Driver.Network = "harbor"
	}
	if cfg.Driver.DataDir == "" {
		cfg.Driver.DataDir = "~/ship_data"
	}
	if cfg.Driver.AddressGrace == 0 {
		cfg.Driver.AddressGrace = 60 * time.Second
	}
	if cfg.Driver.Kube.Namespace == "" {
		cfg.Driver.Kube.Namespace = "default"
	}
	if cfg.Driver.Kube.PVCSize == "" {
		cfg.Driver.Kube.PVCSize = "1Gi"
	}
	if cfg.Driver.Kube.ImagePullPolicy == "" {
		cfg.Driver.Kube.ImagePullPolicy = "IfNotPresent"
	}
	if cfg.Driver.Kube.ReadyPollInterval == 0 {
		cfg.Driver.Kube.ReadyPollInterval = 2 * time.Second
	}
	if cfg.Driver.Kube.ReadyTimeout == 0 {
		cfg.Driver.Kube.ReadyTimeout = 60 * time.Second
	}

	// Ship defaults
	if cfg.Ship.ContainerPort == 0 {
		cfg.Ship.ContainerPort = 8123
	}
	if cfg.Ship.MaxShips == 0 {
		cfg.Ship.MaxShips = 10
	}
	if cfg.Ship.OverflowPolicy == "" {
		cfg.Ship.OverflowPolicy = "wait"
	}
	if cfg.Ship.SlotWaitTimeout == 0 {
		cfg.Ship.SlotWaitTimeout = 5 * time.Minute
	}
	if cfg.Ship.SlotPollInterval == 0 {
		cfg.Ship.SlotPollInterval = 5 * time.Second
	}
	if cfg.Ship.DefaultTTL == 0 {
		cfg.Ship.DefaultTTL = 3600
	}
	if cfg.Ship.DefaultCPUs == 0 {
		cfg.Ship.DefaultCPUs = 1.0
	}
	if cfg.Ship.DefaultMemory == "" {
		cfg.Ship.DefaultMemory = "512m"
	}
	if cfg.Ship.HealthCheckTimeout == 0 {
		cfg.Ship.HealthCheckTimeout = 60 * time.Second
	}
	if cfg.Ship.HealthCheckInterval == 0 {
		cfg.Ship.HealthCheckInterval = 2 * time.Second
	}
	if cfg.Ship.StatusCheckInterval == 0 {
		cfg.Ship.StatusCheckInterval = 60 * time.Second
	}
	if cfg.Ship.ExecTimeout == 0 {
		cfg.Ship.ExecTimeout = 30 * time.Second
	}
	if cfg.Ship.TransferTimeout == 0 {
		cfg.Ship.TransferTimeout = 120 * time.Second
	}
	if cfg.Ship.MaxUploadSize == 0 {
		cfg.Ship.MaxUploadSize = 100 * 1024 * 1024
	}

	// Warm pool defaults (disabled unless enabled explicitly)
	if cfg.WarmPool.MinSize == 0 {
		cfg.WarmPool.MinSize = 1
	}
	if cfg.WarmPool.MaxSize == 0 {
		cfg.WarmPool.MaxSize = 3
	}
	if cfg.WarmPool.ReplenishInterval == 0 {
		cfg.WarmPool.ReplenishInterval = 30 * time.Second
	}

	// Daemon defaults
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = "/tmp/harbor.pid"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Metrics defaults
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
