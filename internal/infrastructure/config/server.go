package config

import "time"

// ServerConfig holds the public HTTP API configuration
type ServerConfig struct {
	// Host to bind the API server
	Host string `mapstructure:"host"`

	// Port for the API server
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// Debug enables verbose request logging
	Debug bool `mapstructure:"debug"`

	// AccessToken is the bearer token required on authenticated routes
	AccessToken string `mapstructure:"access_token" validate:"required"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}
