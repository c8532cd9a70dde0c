package harbor

// ShipSpec carries optional resource requests for a ship container.
//
// Memory and Disk accept both binary ("512Mi", "1Gi") and decimal-suffix
// ("512m", "1g", "1024kb") notations; drivers normalize and enforce floors
// before talking to the runtime.
type ShipSpec struct {
	CPUs   float64 `json:"cpus,omitempty" validate:"omitempty,gt=0"`
	Memory string  `json:"memory,omitempty"`
	Disk   string  `json:"disk,omitempty"`
}
