// Package metrics holds the Prometheus instruments for the relay and the
// HTTP endpoint that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smtp_discord_relay_connections_total",
			Help: "Total number of accepted SMTP connections",
		},
	)

	SessionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smtp_discord_relay_sessions_current",
			Help: "Number of open SMTP sessions",
		},
	)

	AuthenticationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_discord_relay_authentication_attempts_total",
			Help: "SMTP authentication attempts by result",
		},
		[]string{"mechanism", "result"},
	)

	// result is one of delivered, parse_error, delivery_error.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_discord_relay_messages_total",
			Help: "Messages received over SMTP by outcome",
		},
		[]string{"deliverer", "result"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smtp_discord_relay_delivery_duration_seconds",
			Help:    "Duration of webhook delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"deliverer"},
	)
)
