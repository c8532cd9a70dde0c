package config

// DaemonConfig holds process-level daemon configuration
type DaemonConfig struct {
	// PID file location for single-instance enforcement
	PIDFile string `mapstructure:"pid_file"`
}
