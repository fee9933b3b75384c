package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_auth_events_total",
			Help: "Auth change events received from the auth provider",
		},
		[]string{"kind", "outcome"},
	)

	signOutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sign_outs_total",
			Help: "Sign-out attempts by how they settled",
		},
		[]string{"result"},
	)

	profileResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_profile_resolutions_total",
			Help: "Profile resolutions by path taken",
		},
		[]string{"path"},
	)

	permissionResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_permission_resolution_duration_seconds",
			Help:    "Duration of role and permission resolution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

// Label values.
const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
	outcomeStale   = "stale"
	outcomeTimeout = "timeout"
	outcomeError   = "error"

	signOutCompleted = "completed"
	signOutFailed    = "failed"
	signOutRecovered = "recovered"
	signOutEvent     = "event"
	signOutSkipped   = "skipped"

	profileByUserID = "user_id"
	profileByEmail  = "email"
	profileCreated  = "created"
	profileRaced    = "raced"
	profileFailed   = "failed"
)
