package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatsphere",
			Subsystem: "gateway",
			Name:      "active_connections",
			Help:      "Number of open websocket connections",
		},
	)

	// OnlineUsers tracks users with at least one open connection.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatsphere",
			Subsystem: "gateway",
			Name:      "online_users",
			Help:      "Number of users with at least one connection",
		},
	)

	// EventsDelivered counts events written to client send buffers.
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsphere",
			Subsystem: "gateway",
			Name:      "events_delivered_total",
			Help:      "Events fanned out to connections",
		},
		[]string{"type"},
	)

	// MessagesTotal counts persisted messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsphere",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Messages appended to conversation logs",
		},
		[]string{"kind"}, // user or system
	)

	// FriendRequestsTotal counts friend request transitions.
	FriendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsphere",
			Subsystem: "friend",
			Name:      "requests_total",
			Help:      "Friend request lifecycle transitions",
		},
		[]string{"transition"}, // sent, accepted, rejected
	)
)
