package broker

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/resource"
)

type pendingAllocation struct {
	cluster     string
	portal      string
	environment string
	session     string
}

func (a pendingAllocation) portalKey() string {
	return a.cluster + "/" + a.portal
}

func (a pendingAllocation) environmentKey() string {
	return a.cluster + "/" + a.portal + "/" + a.environment
}

// AllocationLedger remembers sessions handed out by portals that the cache
// has not observed as allocated yet. An entry is dropped once ingestion
// reports its session past the available phase, or when the configured TTL
// lapses, whichever comes first.
//
// A nil ledger records nothing.
type AllocationLedger struct {
	pending *ttlcache.Cache[string, pendingAllocation]
}

// NewAllocationLedger returns a ledger, or nil when ttl is not positive.
func NewAllocationLedger(ttl time.Duration) *AllocationLedger {
	if ttl <= 0 {
		return nil
	}
	return &AllocationLedger{
		pending: ttlcache.New(
			ttlcache.WithTTL[string, pendingAllocation](ttl),
			ttlcache.WithDisableTouchOnHit[string, pendingAllocation](),
		),
	}
}

// Record notes one tentative allocation of the named session in the
// environment.
func (l *AllocationLedger) Record(snapshot cache.EnvironmentSnapshot, session string) {
	if l == nil {
		return
	}
	key := snapshot.Key() + "/" + session
	if session == "" {
		key = uuid.NewString()
	}
	l.pending.Set(key, pendingAllocation{
		cluster:     snapshot.Cluster,
		portal:      snapshot.Portal,
		environment: snapshot.Name,
		session:     session,
	}, ttlcache.DefaultTTL)
}

// Apply adds unexpired tentative allocations to the allocated counters of
// the snapshots, both for the environment and for its portal. Allocations
// the store already counts are forgotten first.
func (l *AllocationLedger) Apply(store *cache.Store, snapshots []cache.EnvironmentSnapshot) []cache.EnvironmentSnapshot {
	if l == nil || len(snapshots) == 0 {
		return snapshots
	}

	l.pending.DeleteExpired()

	environments := make(map[string]int)
	portals := make(map[string]int)
	for key, item := range l.pending.Items() {
		if item.IsExpired() {
			continue
		}
		allocation := item.Value()
		if observed(store, allocation) {
			l.pending.Delete(key)
			continue
		}
		portals[allocation.portalKey()]++
		environments[allocation.environmentKey()]++
	}

	adjusted := make([]cache.EnvironmentSnapshot, len(snapshots))
	for i, snapshot := range snapshots {
		snapshot.Allocated = resource.WithPending(snapshot.Allocated, environments[snapshot.Key()])
		snapshot.PortalAllocated = resource.WithPending(snapshot.PortalAllocated, portals[snapshot.Cluster+"/"+snapshot.Portal])
		adjusted[i] = snapshot
	}
	return adjusted
}

// observed reports whether ingestion has seen the session leave the
// available phase, after which the store's counters include it.
func observed(store *cache.Store, allocation pendingAllocation) bool {
	if store == nil || allocation.session == "" {
		return false
	}
	environment := store.Environment(allocation.cluster, allocation.portal, allocation.environment)
	if environment == nil {
		return false
	}
	session, ok := environment.Session(allocation.session)
	return ok && session.Phase != cache.SessionPhaseAvailable
}

// Len returns the number of unexpired tentative allocations.
func (l *AllocationLedger) Len() int {
	if l == nil {
		return 0
	}
	l.pending.DeleteExpired()
	return l.pending.Len()
}
