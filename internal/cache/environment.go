package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/educates/lookup-service/internal/metrics"
)

// Environment is a cached workshop environment together with the sessions
// created from it. Allocated and available are derived from the session set
// and are recomputed under the same lock that guards the set, so a reader
// never sees a half-updated pair.
type Environment struct {
	mu sync.RWMutex

	portal *Portal
	logger logr.Logger

	name        string
	uid         string
	generation  int64
	workshop    string
	title       string
	description string
	labels      map[string]string
	capacity    int
	reserved    int
	allocated   int
	available   int
	phase       EnvironmentPhase

	sessions map[string]Session
}

func newEnvironment(portal *Portal, name string, logger logr.Logger) *Environment {
	return &Environment{
		portal:   portal,
		name:     name,
		logger:   logger,
		sessions: make(map[string]Session),
	}
}

func (e *Environment) Name() string {
	return e.name
}

// Portal returns the training portal hosting the environment.
func (e *Environment) Portal() *Portal {
	return e.portal
}

func (e *Environment) UID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.uid
}

func (e *Environment) Generation() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

func (e *Environment) Workshop() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workshop
}

func (e *Environment) Phase() EnvironmentPhase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// IsRunning reports whether sessions can be requested from the environment.
func (e *Environment) IsRunning() bool {
	return e.Phase() == EnvironmentPhaseRunning
}

// Counters returns the capacity counters as a single consistent read.
func (e *Environment) Counters() EnvironmentCounters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EnvironmentCounters{
		Capacity:  e.capacity,
		Reserved:  e.reserved,
		Allocated: e.allocated,
		Available: e.available,
	}
}

// Sessions returns copies of the sessions sorted by name.
func (e *Environment) Sessions() []Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sessions := slices.Collect(maps.Values(e.sessions))
	slices.SortFunc(sessions, func(a, b Session) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sessions
}

func (e *Environment) Session(name string) (Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	session, ok := e.sessions[name]
	return session, ok
}

// RecalculateCapacity recomputes allocated and available from the current
// session set and publishes the result.
func (e *Environment) RecalculateCapacity() {
	e.mu.Lock()
	allocated, available := e.recalculateLocked()
	e.mu.Unlock()

	e.publish(allocated, available)
}

func (e *Environment) recalculateLocked() (int, int) {
	allocated := 0
	available := 0
	for _, session := range e.sessions {
		switch session.Phase {
		case SessionPhaseAllocated:
			allocated++
		case SessionPhaseAvailable:
			available++
		}
	}
	e.allocated = allocated
	e.available = available
	return allocated, available
}

func (e *Environment) publish(allocated, available int) {
	clusterName := e.portal.ClusterName()
	portalName := e.portal.Name()

	e.logger.Info("Recalculated capacity for workshop environment",
		"environment", e.name,
		"portal", portalName,
		"cluster", clusterName,
		"allocated", allocated,
		"available", available)

	metrics.RecordEnvironmentCapacity(clusterName, portalName, e.name, allocated, available)
}

// update replaces the observed attributes. The session set is kept.
func (e *Environment) update(state EnvironmentState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uid = state.UID
	e.generation = state.Generation
	e.workshop = state.Workshop
	e.title = state.Title
	e.description = state.Description
	e.labels = maps.Clone(state.Labels)
	e.capacity = state.Capacity
	e.reserved = state.Reserved
	e.phase = state.Phase
}

// putSession adds or replaces a session and recomputes the counters in the
// same critical section.
func (e *Environment) putSession(session Session) {
	e.mu.Lock()
	e.sessions[session.Name] = session
	allocated, available := e.recalculateLocked()
	e.mu.Unlock()

	e.publish(allocated, available)
}

// deleteSession removes a session if present and recomputes the counters.
func (e *Environment) deleteSession(name string) bool {
	e.mu.Lock()
	if _, ok := e.sessions[name]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.sessions, name)
	allocated, available := e.recalculateLocked()
	e.mu.Unlock()

	e.publish(allocated, available)
	return true
}

// sessionForUser returns a session owned by user that can be handed back to
// them. Sessions that are stopping are never returned.
func (e *Environment) sessionForUser(user string) (Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, session := range e.sessions {
		if session.User != user {
			continue
		}
		if session.Phase == SessionPhaseAllocated || session.Phase == SessionPhaseAvailable {
			return session, true
		}
	}
	return Session{}, false
}

// Snapshot returns an immutable view of the environment for placement.
// Portal counters are read first and released before the environment lock is
// taken, keeping lock order portal before environment.
func (e *Environment) Snapshot() EnvironmentSnapshot {
	portalCounters := e.portal.Counters()
	endpoint := e.portal.Endpoint()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return EnvironmentSnapshot{
		Cluster:         endpoint.Cluster,
		Portal:          endpoint.Portal,
		Name:            e.name,
		Workshop:        e.workshop,
		Title:           e.title,
		Description:     e.description,
		Labels:          maps.Clone(e.labels),
		Capacity:        e.capacity,
		Reserved:        e.reserved,
		Allocated:       e.allocated,
		Available:       e.available,
		PortalCapacity:  portalCounters.Capacity,
		PortalAllocated: portalCounters.Allocated,
		Endpoint:        endpoint,
	}
}
