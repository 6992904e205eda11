package cache

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educates/lookup-service/internal/errdefs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(logr.Discard())
	store.UpsertCluster(ClusterConfiguration{Name: "cluster-1", Labels: map[string]string{"region": "eu"}})
	store.UpsertPortal(PortalState{Cluster: "cluster-1", Name: "portal-1", Capacity: 10, URL: "https://portal-1.example.com"})
	_, err := store.UpsertEnvironment(EnvironmentState{
		Cluster:  "cluster-1",
		Portal:   "portal-1",
		Name:     "env-1",
		Workshop: "lab-1",
		Capacity: 5,
		Phase:    EnvironmentPhaseRunning,
	})
	require.NoError(t, err)
	return store
}

func addSession(t *testing.T, store *Store, name, user string, phase SessionPhase) {
	t.Helper()
	require.NoError(t, store.AddSession(SessionState{
		Cluster:     "cluster-1",
		Portal:      "portal-1",
		Environment: "env-1",
		Name:        name,
		User:        user,
		Phase:       phase,
	}))
}

func TestAddSessionRecalculatesCounters(t *testing.T) {
	store := newTestStore(t)

	addSession(t, store, "s-1", "alice", SessionPhaseAllocated)
	addSession(t, store, "s-2", "", SessionPhaseAvailable)
	addSession(t, store, "s-3", "bob", SessionPhaseStopping)

	environment := store.Environment("cluster-1", "portal-1", "env-1")
	require.NotNil(t, environment)
	assert.Equal(t, EnvironmentCounters{Capacity: 5, Allocated: 1, Available: 1}, environment.Counters())

	portal := store.Portal("cluster-1", "portal-1")
	assert.Equal(t, PortalCounters{Capacity: 10, Allocated: 1, Available: 1}, portal.Counters())
}

func TestAddSessionIsIdempotentAndTracksPhaseChanges(t *testing.T) {
	store := newTestStore(t)

	addSession(t, store, "s-1", "", SessionPhaseAvailable)
	addSession(t, store, "s-1", "", SessionPhaseAvailable)
	environment := store.Environment("cluster-1", "portal-1", "env-1")
	assert.Equal(t, 0, environment.Counters().Allocated)
	assert.Equal(t, 1, environment.Counters().Available)

	addSession(t, store, "s-1", "alice", SessionPhaseAllocated)
	assert.Equal(t, 1, environment.Counters().Allocated)
	assert.Equal(t, 0, environment.Counters().Available)
	assert.Len(t, environment.Sessions(), 1)
}

func TestAddSessionUnknownEnvironment(t *testing.T) {
	store := newTestStore(t)

	err := store.AddSession(SessionState{Cluster: "cluster-1", Portal: "portal-1", Environment: "missing", Name: "s-1"})
	assert.ErrorIs(t, err, errdefs.ErrEnvironmentNotFound)
}

func TestRemoveSession(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "s-1", "alice", SessionPhaseAllocated)
	addSession(t, store, "s-2", "bob", SessionPhaseAllocated)

	store.RemoveSession("cluster-1", "portal-1", "env-1", "s-1")
	store.RemoveSession("cluster-1", "portal-1", "env-1", "s-1")
	// Located by name when the environment is not known.
	store.RemoveSession("cluster-1", "", "", "s-2")

	environment := store.Environment("cluster-1", "portal-1", "env-1")
	assert.Equal(t, 0, environment.Counters().Allocated)
	assert.Empty(t, environment.Sessions())
	assert.Equal(t, 0, store.Portal("cluster-1", "portal-1").Counters().Allocated)
}

func TestRecalculationMatchesSessionSet(t *testing.T) {
	store := newTestStore(t)
	random := rand.New(rand.NewSource(42))
	phases := []SessionPhase{SessionPhaseAllocated, SessionPhaseAvailable, SessionPhaseStopping, SessionPhaseStopped}

	for i := 0; i < 500; i++ {
		name := fmt.Sprintf("s-%d", random.Intn(20))
		if random.Intn(3) == 0 {
			store.RemoveSession("cluster-1", "portal-1", "env-1", name)
			continue
		}
		addSession(t, store, name, "user", phases[random.Intn(len(phases))])
	}

	environment := store.Environment("cluster-1", "portal-1", "env-1")
	allocated, available := 0, 0
	for _, session := range environment.Sessions() {
		switch session.Phase {
		case SessionPhaseAllocated:
			allocated++
		case SessionPhaseAvailable:
			available++
		}
	}
	counters := environment.Counters()
	assert.Equal(t, allocated, counters.Allocated)
	assert.Equal(t, available, counters.Available)
}

func TestConcurrentSessionUpdates(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				name := fmt.Sprintf("s-%d-%d", worker, i)
				_ = store.AddSession(SessionState{
					Cluster: "cluster-1", Portal: "portal-1", Environment: "env-1",
					Name: name, Phase: SessionPhaseAllocated,
				})
				_ = store.Snapshot("lab-1", store.Portals())
				if i%2 == 0 {
					store.RemoveSession("cluster-1", "portal-1", "env-1", name)
				}
			}
		}(worker)
	}
	wg.Wait()

	environment := store.Environment("cluster-1", "portal-1", "env-1")
	assert.Equal(t, 8*25, environment.Counters().Allocated)
	assert.Equal(t, 8*25, store.Portal("cluster-1", "portal-1").Counters().Allocated)
}

func TestUpsertEnvironmentCreatesPlaceholderPortal(t *testing.T) {
	store := NewStore(logr.Discard())

	_, err := store.UpsertEnvironment(EnvironmentState{
		Cluster: "cluster-2", Portal: "portal-9", Name: "env-9", Workshop: "lab-9", Phase: EnvironmentPhaseRunning,
	})
	require.NoError(t, err)

	portal := store.Portal("cluster-2", "portal-9")
	require.NotNil(t, portal)
	assert.False(t, portal.Observed())
	assert.Equal(t, 0, portal.Counters().Capacity)
	assert.False(t, store.Cluster("cluster-2").Registered())
}

func TestUpsertEnvironmentKeepsSessions(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "s-1", "alice", SessionPhaseAllocated)

	_, err := store.UpsertEnvironment(EnvironmentState{
		Cluster: "cluster-1", Portal: "portal-1", Name: "env-1", Workshop: "lab-1", Capacity: 8, Phase: EnvironmentPhaseRunning,
	})
	require.NoError(t, err)

	counters := store.Environment("cluster-1", "portal-1", "env-1").Counters()
	assert.Equal(t, 8, counters.Capacity)
	assert.Equal(t, 1, counters.Allocated)
}

func TestRemoveEnvironmentDropsSessions(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "s-1", "alice", SessionPhaseAllocated)

	store.RemoveEnvironment("cluster-1", "", "env-1")
	store.RemoveEnvironment("cluster-1", "portal-1", "env-1")

	assert.Nil(t, store.Environment("cluster-1", "portal-1", "env-1"))
	assert.Equal(t, 0, store.Portal("cluster-1", "portal-1").Counters().Allocated)
}

func TestRemovePortalAndCluster(t *testing.T) {
	store := newTestStore(t)

	store.RemovePortal("cluster-1", "portal-1")
	assert.Nil(t, store.Portal("cluster-1", "portal-1"))
	assert.Empty(t, store.EnvironmentsForWorkshop("lab-1"))

	store.RemoveCluster("cluster-1")
	store.RemoveCluster("cluster-1")
	assert.Nil(t, store.Cluster("cluster-1"))
}

func TestEnvironmentsForWorkshopAndRunningEnvironments(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpsertEnvironment(EnvironmentState{
		Cluster: "cluster-1", Portal: "portal-1", Name: "env-0", Workshop: "lab-1", Phase: EnvironmentPhaseStopping,
	})
	require.NoError(t, err)
	_, err = store.UpsertEnvironment(EnvironmentState{
		Cluster: "cluster-1", Portal: "portal-1", Name: "env-2", Workshop: "lab-2", Phase: EnvironmentPhaseRunning,
	})
	require.NoError(t, err)

	environments := store.EnvironmentsForWorkshop("lab-1")
	require.Len(t, environments, 2)
	assert.Equal(t, "env-0", environments[0].Name())
	assert.Equal(t, "env-1", environments[1].Name())

	running := store.RunningEnvironments("cluster-1", "portal-1")
	require.Len(t, running, 2)
	assert.Equal(t, "env-1", running[0].Name())
	assert.Equal(t, "env-2", running[1].Name())

	assert.Nil(t, store.RunningEnvironments("cluster-1", "missing"))
}

func TestSnapshot(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "s-1", "alice", SessionPhaseAllocated)
	addSession(t, store, "s-2", "", SessionPhaseAvailable)

	snapshots := store.Snapshot("lab-1", store.Portals())
	require.Len(t, snapshots, 1)

	snapshot := snapshots[0]
	assert.Equal(t, "cluster-1/portal-1/env-1", snapshot.Key())
	assert.Equal(t, 5, snapshot.Capacity)
	assert.Equal(t, 1, snapshot.Allocated)
	assert.Equal(t, 1, snapshot.Available)
	assert.Equal(t, 10, snapshot.PortalCapacity)
	assert.Equal(t, 1, snapshot.PortalAllocated)
	assert.Equal(t, "https://portal-1.example.com", snapshot.Endpoint.URL)

	assert.Empty(t, store.Snapshot("lab-2", store.Portals()))
}

func TestFindExistingSessionForUser(t *testing.T) {
	store := newTestStore(t)
	addSession(t, store, "s-1", "alice", SessionPhaseStopping)
	addSession(t, store, "s-2", "alice", SessionPhaseAllocated)

	portal := store.Portal("cluster-1", "portal-1")
	session, ok := portal.FindExistingSessionForUser("alice", "lab-1")
	require.True(t, ok)
	assert.Equal(t, "s-2", session.Name)
	assert.Equal(t, "env-1", session.Environment)

	_, ok = portal.FindExistingSessionForUser("alice", "lab-2")
	assert.False(t, ok)
	_, ok = portal.FindExistingSessionForUser("", "lab-1")
	assert.False(t, ok)
}

func TestReady(t *testing.T) {
	store := NewStore(logr.Discard())
	assert.True(t, store.Ready())

	store.UpsertCluster(ClusterConfiguration{Name: "cluster-1"})
	assert.False(t, store.Ready())

	store.UpsertPortal(PortalState{Cluster: "cluster-1", Name: "portal-1"})
	assert.True(t, store.Ready())
}
