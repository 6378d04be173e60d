package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "rides_created_total", Help: "Total rides requested"})

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "ride_transitions_total", Help: "Committed ride status transitions"},
		[]string{"to"},
	)

	AcceptConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "accept_conflicts_total", Help: "Accept attempts that lost the race"})

	SettlementsTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "settlements_total", Help: "Completed fare transfers"})
	SettlementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "settlement_failures_total", Help: "Fare transfers that failed and were flagged"})
	TopUpsTotal             = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "topups_total", Help: "Wallet top-ups credited"})
	RelayDeliveriesTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "relay_deliveries_total", Help: "Payloads handed to the realtime channel"})
	WSConnections           = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ridehail", Name: "ws_connections", Help: "Currently connected websocket clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridehail",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
