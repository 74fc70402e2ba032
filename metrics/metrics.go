// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger metrics
	VisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoppin_ledger_visits_total",
			Help: "Visit record attempts by outcome",
		},
		[]string{"status"}, // "recorded", "duplicate", "ignored", "failed"
	)

	BadgeTierUps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoppin_ledger_badge_tier_ups_total",
			Help: "Badge tier increases by category",
		},
		[]string{"category"},
	)

	CheckInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoppin_ledger_checkins_total",
			Help: "Daily check-ins by result",
		},
		[]string{"result"}, // "same_day", "continued", "reset", "failed"
	)

	// Store metrics
	StoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoppin_store_conflicts_total",
			Help: "Transaction attempts lost to a concurrent writer",
		},
		[]string{"driver"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoppin_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hoppin_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoppin_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"route"},
	)
)
