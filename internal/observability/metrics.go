package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "offers_total", Help: "Rides published"})
	JoinsTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "joins_total", Help: "Confirmed seat bookings"})
	JoinRequestsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "join_requests_total", Help: "Join requests queued for owner approval"})
	ApprovalsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "approvals_total", Help: "Pending requests approved"})
	DeclinesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "declines_total", Help: "Pending requests declined"})
	LeavesTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "leaves_total", Help: "Passengers leaving rides"})
	CancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "cancellations_total", Help: "Rides cancelled by their owner"})
	ExpiredTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "expired_total", Help: "Rides demoted to Expired by the sweep"})

	SeatUpdateRetries = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "seat_update_retries_total", Help: "Optimistic version conflicts retried on seat mutations"})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "commute_rides", Name: "notification_failures_total", Help: "Best-effort notification dispatches that failed"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "commute_rides", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "commute_rides",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
