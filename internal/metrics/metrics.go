package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_ws_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_messages_sent_total",
			Help: "Total chat messages persisted and broadcast",
		},
	)

	EventsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_events_pushed_total",
			Help: "Total events pushed to live connections",
		},
	)
)
