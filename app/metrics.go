package oneday

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/putto11262002/oneday/core"
)

// Metrics holds the Prometheus collectors for the relay. Each App owns
// its own registry so that tests can construct several apps in one
// process without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// MatchesTotal counts successful pairings.
	MatchesTotal prometheus.Counter
	// MessagesRelayedTotal counts messages appended and fanned out.
	MessagesRelayedTotal prometheus.Counter
}

// NewMetrics builds the registry with live gauges reading straight off
// the chat service state.
func NewMetrics(service core.ChatService) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_matches_total",
			Help: "Total number of successful pairings.",
		}),
		MessagesRelayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_relayed_total",
			Help: "Total number of messages relayed to room members.",
		}),
	}

	connectedUsers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_connected_users",
		Help: "Current number of registered sessions.",
	}, func() float64 {
		return float64(service.Stats().Connected)
	})
	waitingUsers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_waiting_users",
		Help: "Current number of open match requests.",
	}, func() float64 {
		return float64(service.Stats().Waiting)
	})
	activeRooms := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_active_rooms",
		Help: "Current number of rooms, occupied or not.",
	}, func() float64 {
		return float64(service.Stats().Rooms)
	})

	m.registry.MustRegister(m.MatchesTotal, m.MessagesRelayedTotal,
		connectedUsers, waitingUsers, activeRooms)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
