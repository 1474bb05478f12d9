// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrationsTotal tracks user registrations by outcome
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Total number of registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// LoginsTotal tracks login attempts by outcome
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FriendRequestsTotal tracks friend request lifecycle operations
	FriendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "requests",
			Name:      "lifecycle_total",
			Help:      "Total number of friend request lifecycle operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// FriendshipsTotal tracks friendship edges written and removed
	FriendshipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "friendships",
			Name:      "mutations_total",
			Help:      "Total number of friendship edge mutations",
		},
		[]string{"mutation"},
	)

	// RateLimitedTotal tracks requests rejected by the send-request throttle
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "requests",
			Name:      "rate_limited_total",
			Help:      "Total number of friend request sends rejected by the rate limiter",
		},
	)

	// RequestDuration tracks HTTP request duration in seconds
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route", "status"},
	)
)
