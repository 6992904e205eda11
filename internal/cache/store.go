package cache

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/educates/lookup-service/internal/errdefs"
	"github.com/educates/lookup-service/internal/metrics"
)

// Store is the capacity cache: clusters, the training portals in them, the
// workshop environments of each portal and the sessions of each environment.
//
// Every mutation is idempotent keyed by identity. Locks are always taken
// top-down (store, cluster, portal, environment) and no lock is held while
// acquiring the lock of a parent.
type Store struct {
	mu       sync.RWMutex
	logger   logr.Logger
	clusters map[string]*Cluster
}

func NewStore(logger logr.Logger) *Store {
	return &Store{
		logger:   logger.WithName("capacity-cache"),
		clusters: make(map[string]*Cluster),
	}
}

// UpsertCluster registers a cluster or replaces its configuration.
func (s *Store) UpsertCluster(config ClusterConfiguration) *Cluster {
	cluster := s.clusterFor(config.Name)
	cluster.configure(config)

	s.logger.Info("Registered cluster configuration", "cluster", config.Name)
	return cluster
}

// RemoveCluster drops a cluster together with everything cached under it.
func (s *Store) RemoveCluster(name string) {
	s.mu.Lock()
	cluster, ok := s.clusters[name]
	delete(s.clusters, name)
	s.mu.Unlock()

	if !ok {
		return
	}

	for _, portal := range cluster.Portals() {
		forgetPortal(portal)
	}

	s.logger.Info("Removed cluster configuration", "cluster", name)
}

// Cluster returns the named cluster, or nil.
func (s *Store) Cluster(name string) *Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clusters[name]
}

// Clusters returns all clusters sorted by name.
func (s *Store) Clusters() []*Cluster {
	s.mu.RLock()
	clusters := slices.Collect(maps.Values(s.clusters))
	s.mu.RUnlock()

	slices.SortFunc(clusters, func(a, b *Cluster) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return clusters
}

// clusterFor returns the named cluster, creating an unregistered placeholder
// when a portal refers to a cluster not yet configured.
func (s *Store) clusterFor(name string) *Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	cluster, ok := s.clusters[name]
	if !ok {
		cluster = newCluster(name, s.logger)
		s.clusters[name] = cluster
	}
	return cluster
}

// UpsertPortal records the observed state of a training portal.
func (s *Store) UpsertPortal(state PortalState) *Portal {
	portal := s.clusterFor(state.Cluster).portalFor(state.Name)
	portal.update(state)
	portal.RecalculateCapacity()

	s.logger.V(1).Info("Updated training portal",
		"cluster", state.Cluster,
		"portal", state.Name,
		"capacity", state.Capacity,
		"phase", state.Phase)
	return portal
}

// RemovePortal drops a training portal and its environments.
func (s *Store) RemovePortal(clusterName, name string) {
	cluster := s.Cluster(clusterName)
	if cluster == nil {
		return
	}
	portal := cluster.deletePortal(name)
	if portal == nil {
		return
	}
	forgetPortal(portal)

	s.logger.Info("Removed training portal", "cluster", clusterName, "portal", name)
}

// Portal returns the named portal, or nil.
func (s *Store) Portal(clusterName, name string) *Portal {
	cluster := s.Cluster(clusterName)
	if cluster == nil {
		return nil
	}
	return cluster.Portal(name)
}

// Portals returns every portal ordered by cluster then portal name.
func (s *Store) Portals() []*Portal {
	var portals []*Portal
	for _, cluster := range s.Clusters() {
		portals = append(portals, cluster.Portals()...)
	}
	return portals
}

// UpsertEnvironment records the observed state of a workshop environment.
// A portal that has not been observed yet is created as a placeholder with
// zero capacity.
func (s *Store) UpsertEnvironment(state EnvironmentState) (*Environment, error) {
	if state.Portal == "" {
		return nil, fmt.Errorf("%w: environment %s has no portal", errdefs.ErrPortalNotFound, state.Name)
	}

	portal := s.clusterFor(state.Cluster).portalFor(state.Portal)
	environment := portal.environmentFor(state.Name)
	environment.update(state)
	portal.RecalculateCapacity()

	s.logger.V(1).Info("Updated workshop environment",
		"cluster", state.Cluster,
		"portal", state.Portal,
		"environment", state.Name,
		"workshop", state.Workshop,
		"capacity", state.Capacity,
		"phase", state.Phase)
	return environment, nil
}

// RemoveEnvironment drops a workshop environment and its sessions. An empty
// portal name searches every portal of the cluster.
func (s *Store) RemoveEnvironment(clusterName, portalName, name string) {
	portal := s.locatePortalOfEnvironment(clusterName, portalName, name)
	if portal == nil {
		return
	}
	if portal.deleteEnvironment(name) == nil {
		return
	}
	metrics.ForgetEnvironment(clusterName, portal.Name(), name)
	portal.RecalculateCapacity()

	s.logger.Info("Removed workshop environment",
		"cluster", clusterName,
		"portal", portal.Name(),
		"environment", name)
}

// Environment returns the named environment, or nil.
func (s *Store) Environment(clusterName, portalName, name string) *Environment {
	portal := s.locatePortalOfEnvironment(clusterName, portalName, name)
	if portal == nil {
		return nil
	}
	return portal.Environment(name)
}

// AddSession adds a session to its environment, or replaces it when already
// present, and recalculates capacity. The environment must be cached already.
func (s *Store) AddSession(state SessionState) error {
	environment := s.Environment(state.Cluster, state.Portal, state.Environment)
	if environment == nil {
		return fmt.Errorf("%w: %s/%s for session %s",
			errdefs.ErrEnvironmentNotFound, state.Cluster, state.Environment, state.Name)
	}

	environment.putSession(Session{
		Name:        state.Name,
		Environment: environment.Name(),
		User:        state.User,
		Phase:       state.Phase,
	})
	environment.Portal().RecalculateCapacity()
	return nil
}

// RemoveSession drops a session and recalculates capacity. An empty
// environment name searches every environment of the cluster.
func (s *Store) RemoveSession(clusterName, portalName, environmentName, name string) {
	if environmentName != "" {
		environment := s.Environment(clusterName, portalName, environmentName)
		if environment != nil && environment.deleteSession(name) {
			environment.Portal().RecalculateCapacity()
		}
		return
	}

	cluster := s.Cluster(clusterName)
	if cluster == nil {
		return
	}
	for _, portal := range cluster.Portals() {
		if portalName != "" && portal.Name() != portalName {
			continue
		}
		for _, environment := range portal.Environments() {
			if environment.deleteSession(name) {
				portal.RecalculateCapacity()
				return
			}
		}
	}
}

// EnvironmentsForWorkshop returns every environment serving the workshop,
// whatever its phase, ordered by cluster, portal and name.
func (s *Store) EnvironmentsForWorkshop(workshop string) []*Environment {
	var environments []*Environment
	for _, portal := range s.Portals() {
		for _, environment := range portal.Environments() {
			if environment.Workshop() == workshop {
				environments = append(environments, environment)
			}
		}
	}
	return environments
}

// RunningEnvironments returns the running environments of a portal.
func (s *Store) RunningEnvironments(clusterName, portalName string) []*Environment {
	portal := s.Portal(clusterName, portalName)
	if portal == nil {
		return nil
	}
	return portal.RunningEnvironments()
}

// Snapshot returns placement views of the running environments of the given
// portals that serve the workshop.
func (s *Store) Snapshot(workshop string, portals []*Portal) []EnvironmentSnapshot {
	var snapshots []EnvironmentSnapshot
	for _, portal := range portals {
		for _, environment := range portal.RunningEnvironments() {
			if environment.Workshop() == workshop {
				snapshots = append(snapshots, environment.Snapshot())
			}
		}
	}
	return snapshots
}

// Ready reports whether the cache can serve requests: either no cluster is
// registered or at least one registered cluster has reported a portal.
func (s *Store) Ready() bool {
	clusters := s.Clusters()
	registered := 0
	for _, cluster := range clusters {
		if !cluster.Registered() {
			continue
		}
		registered++
		for _, portal := range cluster.Portals() {
			if portal.Observed() {
				return true
			}
		}
	}
	return registered == 0
}

func (s *Store) locatePortalOfEnvironment(clusterName, portalName, environmentName string) *Portal {
	if portalName != "" {
		return s.Portal(clusterName, portalName)
	}
	cluster := s.Cluster(clusterName)
	if cluster == nil {
		return nil
	}
	for _, portal := range cluster.Portals() {
		if portal.Environment(environmentName) != nil {
			return portal
		}
	}
	return nil
}

func forgetPortal(portal *Portal) {
	for _, environment := range portal.Environments() {
		metrics.ForgetEnvironment(portal.ClusterName(), portal.Name(), environment.Name())
	}
}
