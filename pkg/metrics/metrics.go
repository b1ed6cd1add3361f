package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oakdesk_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AccessDecisions counts permission evaluations by permission and reason.
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oakdesk_access_decisions_total",
			Help: "Total number of access evaluations",
		},
		[]string{"permission", "reason"},
	)

	// EmergencyGrants counts break-glass grants and token consumptions.
	EmergencyGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oakdesk_emergency_grants_total",
			Help: "Total number of emergency access operations",
		},
		[]string{"operation"},
	)

	// DepartmentReparents counts hierarchy moves by outcome (success|cycle_rejected|error).
	DepartmentReparents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oakdesk_department_reparents_total",
			Help: "Total number of department reparent operations",
		},
		[]string{"outcome"},
	)

	// ActiveAssignments tracks assignment rows currently in effect.
	ActiveAssignments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oakdesk_active_assignments",
			Help: "Number of role assignments currently in effect",
		},
	)

	// ActiveEmergencyGrants tracks break-glass grants currently in effect.
	ActiveEmergencyGrants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oakdesk_active_emergency_grants",
			Help: "Number of emergency access grants currently in effect",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oakdesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
