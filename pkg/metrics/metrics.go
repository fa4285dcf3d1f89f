package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docsync"

var (
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connections", Help: "Open websocket connections."},
	)
	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "rooms_active", Help: "Rooms with at least one member."},
	)
	RelayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "relay_messages_total", Help: "Inbound relay frames by event."},
		[]string{"event"},
	)
	RelayDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "relay_dropped_total", Help: "Relay frames or deliveries dropped, by reason."},
		[]string{"reason"},
	)
	Saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "saves_total", Help: "Document saves by result."},
		[]string{"result"},
	)
	VersionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "versions_evicted_total", Help: "Versions dropped by the retention cap."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		WSConnections,
		RoomsActive,
		RelayMessages,
		RelayDropped,
		Saves,
		VersionsEvicted,
		RateLimitAllowed,
		RateLimitRejected,
	)
}
