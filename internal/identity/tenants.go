package identity

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/errdefs"
)

// Selector matches resources by name pattern and by labels. An empty list of
// names matches any name and a nil label selector matches any labels.
type Selector struct {
	// MatchNames holds shell patterns as understood by path.Match.
	MatchNames []string
	Labels     labels.Selector
}

// Matches reports whether a resource with the given name and labels is selected.
func (s Selector) Matches(name string, resourceLabels map[string]string) bool {
	if len(s.MatchNames) != 0 {
		matched := false
		for _, pattern := range s.MatchNames {
			if ok, err := path.Match(pattern, name); err == nil && ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if s.Labels != nil && !s.Labels.Matches(labels.Set(resourceLabels)) {
		return false
	}

	return true
}

// Validate checks the name patterns are well formed.
func (s Selector) Validate() error {
	for _, pattern := range s.MatchNames {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: invalid name pattern %q: %v", errdefs.ErrValidation, pattern, err)
		}
	}
	return nil
}

// Tenant limits which training portals a client acting on its behalf may use.
type Tenant struct {
	Name     string
	Clusters Selector
	Portals  Selector
}

// AllowsPortal reports whether the portal lies in a selected cluster and is
// itself selected.
func (t *Tenant) AllowsPortal(portal *cache.Portal) bool {
	cluster := portal.Cluster()
	if !t.Clusters.Matches(cluster.Name(), cluster.Labels()) {
		return false
	}
	return t.Portals.Matches(portal.Name(), portal.Labels())
}

// PortalsWhichAreAccessible returns the cached portals the tenant may use.
func (t *Tenant) PortalsWhichAreAccessible(store *cache.Store) []*cache.Portal {
	var accessible []*cache.Portal
	for _, portal := range store.Portals() {
		if t.AllowsPortal(portal) {
			accessible = append(accessible, portal)
		}
	}
	return accessible
}

// TenantDatabase holds the configured tenants.
type TenantDatabase struct {
	mu      sync.RWMutex
	logger  logr.Logger
	tenants map[string]*Tenant
}

func NewTenantDatabase(logger logr.Logger) *TenantDatabase {
	return &TenantDatabase{
		logger:  logger.WithName("tenant-database"),
		tenants: make(map[string]*Tenant),
	}
}

// UpdateTenant creates or replaces a tenant.
func (db *TenantDatabase) UpdateTenant(tenant *Tenant) error {
	if tenant.Name == "" {
		return fmt.Errorf("%w: tenant name is required", errdefs.ErrValidation)
	}
	if err := tenant.Clusters.Validate(); err != nil {
		return err
	}
	if err := tenant.Portals.Validate(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	copied := *tenant
	db.tenants[tenant.Name] = &copied
	db.logger.Info("Updated tenant", "tenant", tenant.Name)
	return nil
}

func (db *TenantDatabase) RemoveTenant(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tenants[name]; ok {
		delete(db.tenants, name)
		db.logger.Info("Removed tenant", "tenant", name)
	}
}

// GetTenant returns the named tenant, or nil.
func (db *TenantDatabase) GetTenant(name string) *Tenant {
	db.mu.RLock()
	defer db.mu.RUnlock()
	tenant, ok := db.tenants[name]
	if !ok {
		return nil
	}
	copied := *tenant
	return &copied
}

// TenantNames returns the configured tenant names sorted.
func (db *TenantDatabase) TenantNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return slices.Sorted(maps.Keys(db.tenants))
}
