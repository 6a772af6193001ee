// Package metrics holds the relay's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "relay"

	sessionSubsystem = "session"
	lobbySubsystem   = "lobby"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: sessionSubsystem,
		Name:      "active",
		Help:      "Number of sessions currently running.",
	})

	SessionsTerminated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sessionSubsystem,
		Name:      "terminated_total",
		Help:      "Sessions torn down, by cause.",
	}, []string{"cause"})

	HeartbeatTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sessionSubsystem,
		Name:      "heartbeat_timeouts_total",
		Help:      "Sessions declared dead by the heartbeat monitor.",
	})

	MessagesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: lobbySubsystem,
		Name:      "messages_relayed_total",
		Help:      "Text messages accepted for fan-out.",
	})

	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: lobbySubsystem,
		Name:      "messages_delivered_total",
		Help:      "Messages handed to a session mailbox.",
	})

	DeliveriesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: lobbySubsystem,
		Name:      "deliveries_dropped_total",
		Help:      "Messages dropped because the target mailbox refused them.",
	})

	MessagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: lobbySubsystem,
		Name:      "messages_dropped_total",
		Help:      "Inbound texts dropped before fan-out because the directory fell behind.",
	})

	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: lobbySubsystem,
		Name:      "rooms",
		Help:      "Number of rooms with at least one member.",
	})
)

// Termination causes used as label values.
const (
	CausePeerClosed       = "peer_closed"
	CauseShutdown         = "shutdown"
	CauseJoinFailed       = "join_failed"
	CauseProtocolError    = "protocol_error"
	CauseHeartbeatTimeout = "heartbeat_timeout"
	CauseTransportError   = "transport_error"
)

// NewRegistry returns a registry holding the relay collectors plus the
// go and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		SessionsActive,
		SessionsTerminated,
		HeartbeatTimeouts,
		MessagesRelayed,
		MessagesDelivered,
		DeliveriesDropped,
		MessagesDropped,
		RoomsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}
