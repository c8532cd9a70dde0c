package config

import "time"

// DriverConfig holds container runtime driver configuration
type DriverConfig struct {
	// Type selects the runtime driver: docker, docker-host, podman,
	// podman-host, kubernetes, containerd (planned)
	Type string `mapstructure:"type" validate:"required,oneof=docker docker-host podman podman-host kubernetes containerd"`

	// Image is the ship container image
	Image string `mapstructure:"image" validate:"required"`

	// Network is the docker/podman network ship containers attach to.
	// Empty means the runtime default bridge.
	Network string `mapstructure:"network"`

	// DataDir is the host directory root for per-ship data
	DataDir string `mapstructure:"data_dir"`

	// AddressGrace bounds how long a driver waits for a started container
	// to expose a usable address
	AddressGrace time.Duration `mapstructure:"address_grace"`

	// PodmanSocket overrides the podman socket path (podman drivers only)
	PodmanSocket string `mapstructure:"podman_socket"`

	// Kubernetes driver settings
	Kube KubeConfig `mapstructure:"kube"`
}

// KubeConfig holds the kubernetes driver settings
type KubeConfig struct {
	// Namespace for ship pods and PVCs. In-cluster the service account
	// namespace takes precedence.
	Namespace string `mapstructure:"namespace"`

	// ConfigPath points at a kubeconfig file for out-of-cluster use
	ConfigPath string `mapstructure:"config_path"`

	// PVCSize is the default persistent volume claim size, e.g. "1Gi"
	PVCSize string `mapstructure:"pvc_size"`

	// StorageClass for ship PVCs (empty = cluster default)
	StorageClass string `mapstructure:"storage_class"`

	// ImagePullPolicy for ship pods
	ImagePullPolicy string `mapstructure:"image_pull_policy" validate:"omitempty,oneof=Always IfNotPresent Never"`

	// ReadyPollInterval and ReadyTimeout bound the pod readiness wait
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
}
