package broker

import (
	"cmp"
	"context"
	"slices"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/metrics"
	"github.com/educates/lookup-service/internal/resource"
)

// DecisionEngine selects the workshop environment that should host a new
// session. It is a pure function of the candidate snapshots it is given and
// never touches the cache.
type DecisionEngine struct{}

// SelectEnvironment returns the best candidate for a new session of the
// workshop, or nil when no candidate has usable capacity. Candidates must all
// serve the workshop. The result is deterministic for a given candidate list.
func (e *DecisionEngine) SelectEnvironment(ctx context.Context, workshop string, candidates []cache.EnvironmentSnapshot) *cache.EnvironmentSnapshot {
	logger := log.FromContext(ctx).WithName("decision-engine")

	if len(candidates) == 0 {
		metrics.RecordPlacement(workshop, metrics.PlacementNone)
		return nil
	}

	// Fast path: a single candidate is returned whatever its capacity.
	if len(candidates) == 1 {
		selected := candidates[0]
		metrics.RecordPlacement(workshop, metrics.PlacementFastPath)
		logger.V(1).Info("Selected only candidate environment",
			"workshop", workshop, "environment", selected.Key())
		return &selected
	}

	survivors := make([]cache.EnvironmentSnapshot, 0, len(candidates))
	for _, candidate := range candidates {
		if !hasRoom(candidate) {
			logger.V(1).Info("Skipping environment without capacity",
				"environment", candidate.Key(),
				"capacity", candidate.Capacity,
				"allocated", candidate.Allocated,
				"portalCapacity", candidate.PortalCapacity,
				"portalAllocated", candidate.PortalAllocated)
			continue
		}
		survivors = append(survivors, candidate)
	}

	switch len(survivors) {
	case 0:
		metrics.RecordPlacement(workshop, metrics.PlacementNone)
		logger.Info("No workshop environment has capacity", "workshop", workshop, "candidates", len(candidates))
		return nil
	case 1:
		selected := survivors[0]
		metrics.RecordPlacement(workshop, metrics.PlacementCapacity)
		return &selected
	}

	// Prefer handing out a reserved session on the portal with most headroom.
	slices.SortStableFunc(survivors, func(a, b cache.EnvironmentSnapshot) int {
		return compareCandidates(a, b, a.Available, b.Available)
	})
	if survivors[0].Available > 0 {
		selected := survivors[0]
		metrics.RecordPlacement(workshop, metrics.PlacementReserved)
		logger.V(1).Info("Selected environment with reserved session",
			"workshop", workshop, "environment", selected.Key(), "available", selected.Available)
		return &selected
	}

	slices.SortStableFunc(survivors, func(a, b cache.EnvironmentSnapshot) int {
		return compareCandidates(a, b, environmentHeadroom(a), environmentHeadroom(b))
	})
	selected := survivors[0]
	metrics.RecordPlacement(workshop, metrics.PlacementCapacity)
	logger.V(1).Info("Selected environment with free capacity",
		"workshop", workshop, "environment", selected.Key(), "headroom", environmentHeadroom(selected))
	return &selected
}

// hasRoom reports whether both the environment and its portal can take one
// more session. Zero capacity means unbounded.
func hasRoom(candidate cache.EnvironmentSnapshot) bool {
	return resource.HasRoom(candidate.Capacity, candidate.Allocated) &&
		resource.HasRoom(candidate.PortalCapacity, candidate.PortalAllocated)
}

func portalHeadroom(candidate cache.EnvironmentSnapshot) int {
	return resource.Headroom(candidate.PortalCapacity, candidate.PortalAllocated)
}

func environmentHeadroom(candidate cache.EnvironmentSnapshot) int {
	return resource.Headroom(candidate.Capacity, candidate.Allocated)
}

// compareCandidates orders by portal headroom then the secondary key, both
// descending, falling back to cluster, portal and environment name so the
// order is total.
func compareCandidates(a, b cache.EnvironmentSnapshot, secondaryA, secondaryB int) int {
	if c := cmp.Compare(portalHeadroom(b), portalHeadroom(a)); c != 0 {
		return c
	}
	if c := cmp.Compare(secondaryB, secondaryA); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Cluster, b.Cluster); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Portal, b.Portal); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
