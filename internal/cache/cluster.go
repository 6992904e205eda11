package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Cluster is a registered cluster and the training portals observed in it.
type Cluster struct {
	mu sync.RWMutex

	logger logr.Logger

	name       string
	config     ClusterConfiguration
	registered bool

	portals map[string]*Portal
}

func newCluster(name string, logger logr.Logger) *Cluster {
	return &Cluster{
		name:    name,
		logger:  logger,
		config:  ClusterConfiguration{Name: name},
		portals: make(map[string]*Portal),
	}
}

func (c *Cluster) Name() string {
	return c.name
}

// Configuration returns a copy of the current cluster configuration.
func (c *Cluster) Configuration() ClusterConfiguration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClusterConfiguration{
		Name:       c.config.Name,
		Labels:     maps.Clone(c.config.Labels),
		Kubeconfig: slices.Clone(c.config.Kubeconfig),
	}
}

func (c *Cluster) Labels() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.config.Labels)
}

// Registered reports whether a configuration was supplied for the cluster,
// as opposed to it only being referenced by a portal.
func (c *Cluster) Registered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// Portal returns the named portal, or nil.
func (c *Cluster) Portal(name string) *Portal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.portals[name]
}

// Portals returns all portals sorted by name.
func (c *Cluster) Portals() []*Portal {
	c.mu.RLock()
	portals := slices.Collect(maps.Values(c.portals))
	c.mu.RUnlock()

	slices.SortFunc(portals, func(a, b *Portal) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return portals
}

func (c *Cluster) configure(config ClusterConfiguration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = ClusterConfiguration{
		Name:       c.name,
		Labels:     maps.Clone(config.Labels),
		Kubeconfig: slices.Clone(config.Kubeconfig),
	}
	c.registered = true
}

func (c *Cluster) portalFor(name string) *Portal {
	c.mu.Lock()
	defer c.mu.Unlock()
	portal, ok := c.portals[name]
	if !ok {
		portal = newPortal(c, name, c.logger)
		c.portals[name] = portal
	}
	return portal
}

func (c *Cluster) deletePortal(name string) *Portal {
	c.mu.Lock()
	defer c.mu.Unlock()
	portal, ok := c.portals[name]
	if !ok {
		return nil
	}
	delete(c.portals, name)
	return portal
}
