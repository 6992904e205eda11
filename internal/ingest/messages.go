package ingest

import (
	"github.com/educates/lookup-service/internal/cache"
)

// Message is one change observed by ingestion. Applying a message is
// idempotent: re-applying an upsert replaces in place and removing an entry
// that is not cached does nothing.
type Message interface {
	Apply(store *cache.Store) error
}

type ClusterUpserted struct {
	Config cache.ClusterConfiguration
}

func (m ClusterUpserted) Apply(store *cache.Store) error {
	store.UpsertCluster(m.Config)
	return nil
}

type ClusterRemoved struct {
	Name string
}

func (m ClusterRemoved) Apply(store *cache.Store) error {
	store.RemoveCluster(m.Name)
	return nil
}

type PortalUpserted struct {
	State cache.PortalState
}

func (m PortalUpserted) Apply(store *cache.Store) error {
	store.UpsertPortal(m.State)
	return nil
}

type PortalRemoved struct {
	Cluster string
	Name    string
}

func (m PortalRemoved) Apply(store *cache.Store) error {
	store.RemovePortal(m.Cluster, m.Name)
	return nil
}

type EnvironmentUpserted struct {
	State cache.EnvironmentState
}

func (m EnvironmentUpserted) Apply(store *cache.Store) error {
	_, err := store.UpsertEnvironment(m.State)
	return err
}

// EnvironmentRemoved drops an environment. Portal may be empty when the
// deleted resource is no longer available to tell which portal owned it.
type EnvironmentRemoved struct {
	Cluster string
	Portal  string
	Name    string
}

func (m EnvironmentRemoved) Apply(store *cache.Store) error {
	store.RemoveEnvironment(m.Cluster, m.Portal, m.Name)
	return nil
}

type SessionUpserted struct {
	State cache.SessionState
}

func (m SessionUpserted) Apply(store *cache.Store) error {
	return store.AddSession(m.State)
}

// SessionRemoved drops a session. Portal and Environment may be empty, in
// which case the session is located by name within the cluster.
type SessionRemoved struct {
	Cluster     string
	Portal      string
	Environment string
	Name        string
}

func (m SessionRemoved) Apply(store *cache.Store) error {
	store.RemoveSession(m.Cluster, m.Portal, m.Environment, m.Name)
	return nil
}
