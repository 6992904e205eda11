package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Portal is a cached training portal and the workshop environments it hosts.
// Capacity and reserved come from the portal resource, allocated and
// available are summed over the environments.
type Portal struct {
	mu sync.RWMutex

	cluster *Cluster
	logger  logr.Logger

	name        string
	uid         string
	generation  int64
	labels      map[string]string
	capacity    int
	reserved    int
	allocated   int
	available   int
	phase       string
	url         string
	credentials PortalCredentials

	// observed is false while the portal is only known through an
	// environment that referenced it.
	observed bool

	environments map[string]*Environment
}

func newPortal(cluster *Cluster, name string, logger logr.Logger) *Portal {
	return &Portal{
		cluster:      cluster,
		name:         name,
		logger:       logger,
		environments: make(map[string]*Environment),
	}
}

func (p *Portal) Name() string {
	return p.name
}

func (p *Portal) Cluster() *Cluster {
	return p.cluster
}

func (p *Portal) ClusterName() string {
	return p.cluster.Name()
}

func (p *Portal) Labels() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.labels)
}

func (p *Portal) Phase() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// Observed reports whether the portal resource itself has been seen, as
// opposed to only being referenced by an environment.
func (p *Portal) Observed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.observed
}

func (p *Portal) Counters() PortalCounters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PortalCounters{
		Capacity:  p.capacity,
		Reserved:  p.reserved,
		Allocated: p.allocated,
		Available: p.available,
	}
}

func (p *Portal) Endpoint() PortalEndpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PortalEndpoint{
		Cluster:     p.cluster.Name(),
		Portal:      p.name,
		URL:         p.url,
		Credentials: p.credentials,
	}
}

// Environment returns the named environment, or nil.
func (p *Portal) Environment(name string) *Environment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.environments[name]
}

// Environments returns all environments sorted by name.
func (p *Portal) Environments() []*Environment {
	p.mu.RLock()
	environments := slices.Collect(maps.Values(p.environments))
	p.mu.RUnlock()

	slices.SortFunc(environments, func(a, b *Environment) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return environments
}

// RunningEnvironments returns the environments in the Running phase sorted by name.
func (p *Portal) RunningEnvironments() []*Environment {
	var running []*Environment
	for _, environment := range p.Environments() {
		if environment.IsRunning() {
			running = append(running, environment)
		}
	}
	return running
}

// HostsWorkshop reports whether a running environment of the portal serves the workshop.
func (p *Portal) HostsWorkshop(workshop string) bool {
	for _, environment := range p.RunningEnvironments() {
		if environment.Workshop() == workshop {
			return true
		}
	}
	return false
}

// FindExistingSessionForUser returns a live session of the workshop already
// owned by user.
func (p *Portal) FindExistingSessionForUser(user, workshop string) (Session, bool) {
	if user == "" {
		return Session{}, false
	}
	for _, environment := range p.Environments() {
		if environment.Workshop() != workshop {
			continue
		}
		if session, ok := environment.sessionForUser(user); ok {
			return session, true
		}
	}
	return Session{}, false
}

// RecalculateCapacity sums the environment counters into the portal counters.
func (p *Portal) RecalculateCapacity() {
	p.mu.Lock()
	allocated := 0
	available := 0
	for _, environment := range p.environments {
		counters := environment.Counters()
		allocated += counters.Allocated
		available += counters.Available
	}
	p.allocated = allocated
	p.available = available
	p.mu.Unlock()

	p.logger.V(1).Info("Recalculated capacity for training portal",
		"portal", p.name,
		"cluster", p.cluster.Name(),
		"allocated", allocated,
		"available", available)
}

func (p *Portal) update(state PortalState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uid = state.UID
	p.generation = state.Generation
	p.labels = maps.Clone(state.Labels)
	p.capacity = state.Capacity
	p.reserved = state.Reserved
	p.phase = state.Phase
	p.url = state.URL
	p.credentials = state.Credentials
	p.observed = true
}

// environmentFor returns the named environment, creating it when missing.
func (p *Portal) environmentFor(name string) *Environment {
	p.mu.Lock()
	defer p.mu.Unlock()
	environment, ok := p.environments[name]
	if !ok {
		environment = newEnvironment(p, name, p.logger)
		p.environments[name] = environment
	}
	return environment
}

func (p *Portal) deleteEnvironment(name string) *Environment {
	p.mu.Lock()
	defer p.mu.Unlock()
	environment, ok := p.environments[name]
	if !ok {
		return nil
	}
	delete(p.environments, name)
	return environment
}
