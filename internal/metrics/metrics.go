// Package metrics provides Prometheus metrics for the monitor and the hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "alarm"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultTimeout  = "timeout"
	ResultRejected = "rejected"
	ResultBusy     = "busy"
	ResultDropped  = "dropped"
)

// Feed client metrics.
var (
	// StreamMessagesTotal counts feed messages by outcome.
	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Feed messages received, by result (ok, dropped)",
		},
		[]string{"result"},
	)

	// StreamReconnectsTotal counts scheduled reconnects.
	StreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after a feed failure",
		},
	)

	// StreamConnected is 1 while the feed is connected.
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "Whether the alert feed is currently connected",
		},
	)
)

// Request metrics of the monitor.
var (
	// LogFetchesTotal counts log fetches by result.
	LogFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logs",
			Name:      "fetches_total",
			Help:      "Event log fetches, by result",
		},
		[]string{"result"},
	)

	// CommandsTotal counts arm/disarm commands by result.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "invocations_total",
			Help:      "Arm and disarm invocations, by command and result",
		},
		[]string{"command", "result"},
	)
)

// Hub metrics.
var (
	// HubRequestsTotal counts hub HTTP requests by route and status.
	HubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "requests_total",
			Help:      "Hub HTTP requests, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HubFeedSubscribers tracks connected feed clients.
	HubFeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "feed_subscribers",
			Help:      "Number of connected feed subscribers",
		},
	)

	// HubBroadcastsTotal counts alerts pushed to the feed.
	HubBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Alerts broadcast on the feed",
		},
	)
)
