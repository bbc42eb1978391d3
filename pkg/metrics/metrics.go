package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdocs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collabdocs_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Document Metrics
	DocumentOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdocs_document_operations_total",
			Help: "Total number of document mutations",
		},
		[]string{"operation"}, // created, updated, deleted
	)

	Documents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabdocs_documents",
			Help: "Number of documents held in memory",
		},
	)

	// Presence Metrics
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabdocs_online_users",
			Help: "Number of peers currently online",
		},
	)

	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabdocs_socket_connections",
			Help: "Number of open presence sockets",
		},
	)

	SocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdocs_socket_messages_total",
			Help: "Socket messages received, by type and outcome",
		},
		[]string{"type", "outcome"}, // relayed, rejected
	)
)
