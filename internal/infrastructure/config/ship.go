package config

import "time"

// ShipConfig holds ship lifecycle and forwarding configuration
type ShipConfig struct {
	// ContainerPort is the port ship containers listen on
	ContainerPort int `mapstructure:"container_port" validate:"min=1,max=65535"`

	// MaxShips caps the number of simultaneously active ships
	MaxShips int `mapstructure:"max_ships" validate:"min=1"`

	// OverflowPolicy decides what happens when MaxShips is reached:
	// "reject" fails immediately, "wait" polls for a freed slot
	OverflowPolicy string `mapstructure:"overflow_policy" validate:"oneof=reject wait"`

	// SlotWaitTimeout and SlotPollInterval bound the "wait" policy loop
	SlotWaitTimeout  time.Duration `mapstructure:"slot_wait_timeout"`
	SlotPollInterval time.Duration `mapstructure:"slot_poll_interval"`

	// DefaultTTL is the ship lifetime in seconds when the client omits one
	DefaultTTL int `mapstructure:"default_ttl" validate:"min=1"`

	// DefaultCPUs and DefaultMemory seed the container spec when the client
	// sends none
	DefaultCPUs   float64 `mapstructure:"default_cpus"`
	DefaultMemory string  `mapstructure:"default_memory"`

	// HealthCheckTimeout and HealthCheckInterval bound the post-create
	// health probe loop. These are the single source of truth; nothing
	// else hard-codes probe timing.
	HealthCheckTimeout  time.Duration `mapstructure:"health_check_timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`

	// StatusCheckInterval is how often the reconciler sweeps stored ship
	// statuses against container runtime truth
	StatusCheckInterval time.Duration `mapstructure:"status_check_interval"`

	// ExecTimeout bounds forwarded exec operations, TransferTimeout bounds
	// uploads and downloads
	ExecTimeout     time.Duration `mapstructure:"exec_timeout"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`

	// MaxUploadSize caps file uploads in bytes
	MaxUploadSize int64 `mapstructure:"max_upload_size" validate:"min=1"`
}

// WarmPoolConfig holds the optional warm pool replenisher settings
type WarmPoolConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MinSize is the number of unbound running ships the replenisher keeps
	// warm; MaxSize caps the pool
	MinSize int `mapstructure:"min_size" validate:"min=0"`
	MaxSize int `mapstructure:"max_size" validate:"min=0"`

	// ReplenishInterval is how often the pool level is checked
	ReplenishInterval time.Duration `mapstructure:"replenish_interval"`
}
