package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsIssued counts session families opened by IssueInitial, split by subject kind (user|guest).
	SessionsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_sessions_issued_total",
			Help: "Total number of session families opened",
		},
		[]string{"kind"},
	)

	// Rotations records refresh rotations by result (success|rejected|unavailable).
	Rotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_refresh_rotations_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"result"},
	)

	// Revocations counts revoked session rows by revocation reason.
	Revocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_session_revocations_total",
			Help: "Total number of revoked session rows",
		},
		[]string{"reason"},
	)

	// TokenVerifications counts token verification outcomes (ok|invalid_signature|expired|type_mismatch).
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_token_verifications_total",
			Help: "Total number of token verifications",
		},
		[]string{"type", "result"},
	)

	// CSRFFailures counts rejected state-changing requests.
	CSRFFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_csrf_failures_total",
			Help: "Total number of requests rejected by the CSRF guard",
		},
	)

	// PermissionChecks counts permission evaluations and their outcome (allow|deny|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// PurgedSessions counts rows removed by the maintenance cleaner.
	PurgedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_sessions_purged_total",
			Help: "Total number of session rows purged after the retention window",
		},
	)

	// ActiveSessions reports unrevoked, unexpired session rows as of the last maintenance run.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authcore_sessions_active",
			Help: "Number of active sessions observed by the maintenance cleaner",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
