// Package metrics defines and registers all custom Prometheus metrics
// for the delivery tracking service. It is the single source of truth
// for metric names, labels, and help strings.
//
// The promauto vars register against the default registry at package
// init; the /metrics endpoint is mounted by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracking"

// ── Position metrics ──────────────────────────────────────────────────────────

// PositionsAppliedTotal counts position samples accepted into the store.
var PositionsAppliedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "positions_applied_total",
		Help:      "Total number of agent position samples accepted (latest-timestamp-wins).",
	},
)

// PositionsDiscardedTotal counts samples dropped by the store.
// Label:
//   - reason: "stale" (older than the stored sample) or "invalid"
var PositionsDiscardedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "positions_discarded_total",
		Help:      "Total number of agent position samples discarded.",
	},
	[]string{"reason"},
)

// IngestQueueDepth tracks samples waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index
var IngestQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingest_queue_depth",
		Help:      "Current number of position samples pending in each ingest worker channel.",
	},
	[]string{"worker_id"},
)

// ── Status transition metrics ─────────────────────────────────────────────────

// TransitionsTotal counts applied status transitions.
// Label:
//   - status: the new order status (e.g. "delivered")
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Total number of order status transitions applied.",
	},
	[]string{"status"},
)

// TransitionsRejectedTotal counts transitions rejected by the state machine.
var TransitionsRejectedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_rejected_total",
		Help:      "Total number of status transitions rejected as illegal.",
	},
)

// ScansRecordedTotal counts scan events audited.
// Label:
//   - scan_type: scan origin reported by the device (e.g. "driver_scan")
var ScansRecordedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_recorded_total",
		Help:      "Total number of scan events recorded.",
	},
	[]string{"scan_type"},
)

// ── Realtime channel metrics ──────────────────────────────────────────────────

// ChannelClients tracks currently connected WebSocket clients.
var ChannelClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_clients",
		Help:      "Number of currently connected realtime channel clients.",
	},
)

// ChannelRooms tracks currently active rooms (at least one subscriber).
var ChannelRooms = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_rooms",
		Help:      "Number of rooms with at least one subscriber.",
	},
)

// ChannelEventsTotal counts events fanned out to room subscribers.
// Label:
//   - event: wire event name ("driver:location", "order:status")
var ChannelEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_events_total",
		Help:      "Total number of events delivered to room subscribers.",
	},
	[]string{"event"},
)
