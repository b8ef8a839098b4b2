package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	HoldsAcquired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_holds_acquired_total",
			Help: "Holds granted to checkout sessions",
		},
	)

	HoldsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_holds_rejected_total",
			Help: "Acquire attempts rejected for insufficient availability",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_holds_expired_total",
			Help: "Holds reclaimed by the expiration sweeper",
		},
	)

	OrdersConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_orders_confirmed_total",
			Help: "Holds converted into issued tickets",
		},
	)

	CapacityRacesLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_capacity_races_lost_total",
			Help: "Confirms rejected by the ledger at the final commit",
		},
	)

	CompensatingVoids = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_compensating_voids_total",
			Help: "Payment voids requested after a failed confirm",
		},
	)

	AvailabilityCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_availability_cache_hits_total",
			Help: "Availability reads served from the redis snapshot",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boxoffice_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxoffice_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)
)
