// Package metrics declares the Prometheus instruments for the heartbeat core.
// Instruments are package-level and registered on the default registry; the
// /metrics route is mounted by the app wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks sessions that are not yet stopped.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestwatch_sessions_active",
		Help: "Number of sessions not yet stopped.",
	})

	// SessionsStarted counts session starts.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_sessions_started_total",
		Help: "Total sessions started.",
	})

	// CheckIns counts accepted check-ins.
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_checkins_total",
		Help: "Total accepted check-ins.",
	})

	// MissedTransitions counts edge-triggered active->missed transitions.
	MissedTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_missed_transitions_total",
		Help: "Total sessions promoted to missed by the heartbeat sweep.",
	})

	// SnapshotFailures counts best-effort snapshot writes that failed.
	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_snapshot_failures_total",
		Help: "Total failed snapshot writes.",
	})

	// WSConnections tracks open websocket subscriber connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestwatch_ws_connections",
		Help: "Open websocket subscriber connections.",
	})

	// BroadcastDropped counts fanout deliveries dropped under backpressure.
	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_broadcast_dropped_total",
		Help: "Broadcast deliveries dropped because a subscriber queue was full.",
	})

	// PanicTriggers counts emergency triggers.
	PanicTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_panic_triggers_total",
		Help: "Total emergency panic triggers.",
	})

	// EmergencyDeliveryFailures counts failed external contact notifications.
	EmergencyDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestwatch_emergency_delivery_failures_total",
		Help: "Failed best-effort emergency deliveries to external contacts.",
	})
)
