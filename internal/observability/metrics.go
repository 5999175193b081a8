package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_created_total", Help: "Total orders created"})
	OrdersAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_accepted_total", Help: "Total successful acceptances"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_conflicts_total", Help: "Acceptance attempts that lost the race"})
	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_completed_total", Help: "Total completed rides"})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_cancelled_total", Help: "Total cancelled orders"})
	PollEmissions   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "poll_emissions_total", Help: "Accepted events emitted by the polling fallback"})
	PollChecksLive  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "poll_checks_live", Help: "Currently scheduled status checks"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
