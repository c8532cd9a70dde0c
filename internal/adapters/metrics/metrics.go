package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

const (
	// Namespace for all metrics
	namespace = "harbor"
	// Subsystem for control-plane metrics
	subsystem = "fleet"
)

// Registry is the global Prometheus registry for all metrics.
// Nil when metrics are disabled.
var Registry *prometheus.Registry

// InitRegistry initializes the Prometheus registry.
// Should be called once at startup if metrics are enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return Registry != nil
}

// Metrics records control-plane events. All methods are safe on a nil
// receiver so callers can hold an optional *Metrics without guarding.
type Metrics struct {
	shipsByStatus  *prometheus.GaugeVec
	activeSessions prometheus.Gauge

	shipCreations    *prometheus.CounterVec
	forwards         *prometheus.CounterVec
	cleanups         prometheus.Counter
	reconcilerFixes  prometheus.Counter
	warmPoolCreated  prometheus.Counter
	capacityRejected prometheus.Counter
}

// New constructs the collector set. Call Register to attach it to the
// global registry.
func New() *Metrics {
	return &Metrics{
		shipsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ships",
				Help:      "Number of ships by status",
			},
			[]string{"status"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_sessions",
				Help:      "Number of sessions with an unexpired ship binding",
			},
		),
		shipCreations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ship_creations_total",
				Help:      "Ship container creations by outcome",
			},
			[]string{"outcome"},
		),
		forwards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "forwards_total",
				Help:      "Operations forwarded to ships by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		cleanups: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ttl_cleanups_total",
				Help:      "Ships stopped by the TTL scheduler",
			},
		),
		reconcilerFixes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconciler_repairs_total",
				Help:      "Status corrections applied by the reconciler",
			},
		),
		warmPoolCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "warm_pool_created_total",
				Help:      "Ships created by the warm pool replenisher",
			},
		),
		capacityRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "capacity_rejections_total",
				Help:      "Ship requests rejected or timed out at the capacity gate",
			},
		),
	}
}

// Register attaches all collectors to the global registry.
func (m *Metrics) Register() error {
	if m == nil || Registry == nil {
		return nil
	}
	collectors := []prometheus.Collector{
		m.shipsByStatus,
		m.activeSessions,
		m.shipCreations,
		m.forwards,
		m.cleanups,
		m.reconcilerFixes,
		m.warmPoolCreated,
		m.capacityRejected,
	}
	for _, c := range collectors {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SetShipCount sets the gauge for one ship status.
func (m *Metrics) SetShipCount(status harbor.ShipStatus, count int) {
	if m == nil {
		return
	}
	m.shipsByStatus.WithLabelValues(status.String()).Set(float64(count))
}

// SetActiveSessions sets the active session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

// RecordShipCreation counts a container creation attempt.
func (m *Metrics) RecordShipCreation(success bool) {
	if m == nil {
		return
	}
	m.shipCreations.WithLabelValues(outcome(success)).Inc()
}

// RecordForward counts a forwarded operation.
func (m *Metrics) RecordForward(kind string, success bool) {
	if m == nil {
		return
	}
	m.forwards.WithLabelValues(kind, outcome(success)).Inc()
}

// RecordCleanup counts a ship stopped by the TTL scheduler.
func (m *Metrics) RecordCleanup() {
	if m == nil {
		return
	}
	m.cleanups.Inc()
}

// RecordReconcilerRepair counts a status correction.
func (m *Metrics) RecordReconcilerRepair() {
	if m == nil {
		return
	}
	m.reconcilerFixes.Inc()
}

// RecordWarmPoolCreation counts a warm pool ship creation.
func (m *Metrics) RecordWarmPoolCreation() {
	if m == nil {
		return
	}
	m.warmPoolCreated.Inc()
}

// RecordCapacityRejection counts a request turned away at the capacity gate.
func (m *Metrics) RecordCapacityRejection() {
	if m == nil {
		return
	}
	m.capacityRejected.Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
