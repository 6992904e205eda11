package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	Subsystem = "lookup"

	// Session request outcomes.
	OutcomeCreated             = "created"
	OutcomeReacquired          = "reacquired"
	OutcomeCapacityUnavailable = "capacity_unavailable"
	OutcomeUpstreamUnreachable = "upstream_unreachable"
	OutcomeNotAvailable        = "workshop_not_available"
	OutcomeUnknown             = "outcome_unknown"

	// Placement results.
	PlacementFastPath = "fast_path"
	PlacementReserved = "reserved_session"
	PlacementCapacity = "free_capacity"
	PlacementNone     = "none"
)

var (
	EnvironmentLabels = []string{"cluster", "portal", "environment"}
)

var (
	environmentAllocated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: Subsystem,
			Name:      "environment_allocated_sessions",
			Help:      "Number of allocated workshop sessions per workshop environment.",
		},
		EnvironmentLabels,
	)

	environmentAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: Subsystem,
			Name:      "environment_available_sessions",
			Help:      "Number of reserved workshop sessions waiting to be allocated per workshop environment.",
		},
		EnvironmentLabels,
	)

	placementDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: Subsystem,
			Name:      "placement_decisions_total",
			Help:      "Counter of placement decisions broken out by how the environment was chosen.",
		},
		[]string{"workshop", "result"},
	)

	sessionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: Subsystem,
			Name:      "session_requests_total",
			Help:      "Counter of workshop session requests broken out by tenant and outcome.",
		},
		[]string{"tenant", "workshop", "outcome"},
	)

	portalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: Subsystem,
			Name:      "portal_request_duration_seconds",
			Help:      "Latency of calls made to training portals.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"operation", "success"},
	)
)

var registerMetrics sync.Once

// Register all metrics with the controller-runtime registry.
func Register() {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(environmentAllocated)
		metrics.Registry.MustRegister(environmentAvailable)
		metrics.Registry.MustRegister(placementDecisions)
		metrics.Registry.MustRegister(sessionRequests)
		metrics.Registry.MustRegister(portalRequestDuration)
	})
}

// RecordEnvironmentCapacity publishes the recomputed counters of an environment.
func RecordEnvironmentCapacity(cluster, portal, environment string, allocated, available int) {
	environmentAllocated.WithLabelValues(cluster, portal, environment).Set(float64(allocated))
	environmentAvailable.WithLabelValues(cluster, portal, environment).Set(float64(available))
}

// ForgetEnvironment drops the series of an environment that left the cache.
func ForgetEnvironment(cluster, portal, environment string) {
	environmentAllocated.DeleteLabelValues(cluster, portal, environment)
	environmentAvailable.DeleteLabelValues(cluster, portal, environment)
}

func RecordPlacement(workshop, result string) {
	placementDecisions.WithLabelValues(workshop, result).Inc()
}

func RecordSessionRequest(tenant, workshop, outcome string) {
	sessionRequests.WithLabelValues(tenant, workshop, outcome).Inc()
}

func RecordPortalRequest(operation string, success bool, elapsed time.Duration) {
	label := "false"
	if success {
		label = "true"
	}
	portalRequestDuration.WithLabelValues(operation, label).Observe(elapsed.Seconds())
}
