package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsStarted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "metro_fares", Name: "trips_started_total", Help: "Trips opened at entry gates"})
	TripsEnded   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "metro_fares", Name: "trips_ended_total", Help: "Trips settled at exit gates"})

	AmountHeld  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "metro_fares", Name: "hold_amount", Help: "Amount held at entry, minor units", Buckets: prometheus.ExponentialBuckets(100, 2, 10)})
	FareCharged = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "metro_fares", Name: "fare_amount", Help: "Settled fare, minor units", Buckets: prometheus.ExponentialBuckets(100, 2, 10)})

	RechargesApplied = promauto.NewCounter(prometheus.CounterOpts{Namespace: "metro_fares", Name: "recharges_applied_total", Help: "Recharge events credited"})
	RechargesIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metro_fares", Name: "recharges_ignored_total", Help: "Recharge events dropped as no-ops"},
		[]string{"reason"},
	)

	RouteFailures           = promauto.NewCounter(prometheus.CounterOpts{Namespace: "metro_fares", Name: "route_failures_total", Help: "Settlements that found no path in the network graph"})
	FareExceedsHold         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "metro_fares", Name: "fare_exceeds_hold_total", Help: "Settlements where the fare exceeded the held amount"})
	ReconciliationsRequired = promauto.NewCounter(prometheus.CounterOpts{Namespace: "metro_fares", Name: "reconciliations_required_total", Help: "Settlements left partially applied"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metro_fares", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metro_fares",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
