package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookings_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	CapacityConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_capacity_conflicts_total",
			Help: "Total order attempts rejected for insufficient capacity",
		},
	)

	WaitlistPromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_waitlist_promotions_total",
			Help: "Total successful waitlist promotions",
		},
	)

	OrdersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_orders_expired_total",
			Help: "Total orders cancelled for missed payment deadline",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookings_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
