package identity

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/educates/lookup-service/internal/errdefs"
)

const (
	RoleAdmin             = "admin"
	RoleWorkshopReader    = "workshop-reader"
	RoleWorkshopRequestor = "workshop-requestor"
)

// Client is an application allowed to call the API. UID is embedded in every
// token issued to the client; changing it invalidates those tokens.
type Client struct {
	Name         string
	PasswordHash string
	UID          string
	Roles        []string
	Tenants      []string
}

// ValidateIdentity reports whether uid is the client's current identity value.
func (c *Client) ValidateIdentity(uid string) bool {
	return uid != "" && c.UID == uid
}

// HasRole reports whether the client holds the role.
func (c *Client) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole returns the roles of the client that appear in roles.
func (c *Client) HasAnyRole(roles ...string) []string {
	var matched []string
	for _, role := range roles {
		if c.HasRole(role) {
			matched = append(matched, role)
		}
	}
	return matched
}

func (c *Client) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}

// AllowsTenant reports whether the client may act on behalf of the tenant.
// Admins may act for any tenant.
func (c *Client) AllowsTenant(tenant string) bool {
	if c.IsAdmin() {
		return true
	}
	return slices.Contains(c.Tenants, tenant)
}

func (c *Client) clone() *Client {
	copied := *c
	copied.Roles = slices.Clone(c.Roles)
	copied.Tenants = slices.Clone(c.Tenants)
	return &copied
}

// ClientConfig is the desired state of a client as declared by an operator.
// Password is either a bcrypt hash or a plain text password which is hashed
// on ingestion.
type ClientConfig struct {
	Name     string
	Password string
	Roles    []string
	Tenants  []string
}

// ClientDatabase holds the registered clients.
type ClientDatabase struct {
	mu      sync.RWMutex
	logger  logr.Logger
	clients map[string]*Client
}

func NewClientDatabase(logger logr.Logger) *ClientDatabase {
	return &ClientDatabase{
		logger:  logger.WithName("client-database"),
		clients: make(map[string]*Client),
	}
}

// UpdateClient creates or replaces a client. A new client gets a fresh
// identity value, and so does an existing client whose password changed.
func (db *ClientDatabase) UpdateClient(config ClientConfig) (*Client, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("%w: client name is required", errdefs.ErrValidation)
	}
	if config.Password == "" {
		return nil, fmt.Errorf("%w: client %s has no password", errdefs.ErrValidation, config.Name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	existing := db.clients[config.Name]

	hash, err := passwordHash(config.Password, existing)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password of client %s: %w", config.Name, err)
	}

	client := &Client{
		Name:         config.Name,
		PasswordHash: hash,
		Roles:        slices.Clone(config.Roles),
		Tenants:      slices.Clone(config.Tenants),
	}

	switch {
	case existing == nil:
		client.UID = uuid.NewString()
		db.logger.Info("Added client", "client", client.Name, "roles", client.Roles)
	case existing.PasswordHash != hash:
		client.UID = uuid.NewString()
		db.logger.Info("Rotated identity of client after password change", "client", client.Name)
	default:
		client.UID = existing.UID
		db.logger.V(1).Info("Updated client", "client", client.Name, "roles", client.Roles)
	}

	db.clients[client.Name] = client
	return client.clone(), nil
}

// passwordHash returns the hash to store for password. A plain text password
// matching the existing hash keeps that hash so the identity is not rotated.
func passwordHash(password string, existing *Client) (string, error) {
	if strings.HasPrefix(password, "$2") {
		if _, err := bcrypt.Cost([]byte(password)); err != nil {
			return "", fmt.Errorf("%w: invalid bcrypt hash: %v", errdefs.ErrValidation, err)
		}
		return password, nil
	}

	if existing != nil && bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(password)) == nil {
		return existing.PasswordHash, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// RemoveClient drops a client. Tokens already issued to it stop resolving.
func (db *ClientDatabase) RemoveClient(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.clients[name]; ok {
		delete(db.clients, name)
		db.logger.Info("Removed client", "client", name)
	}
}

// GetClient returns a copy of the named client, or nil.
func (db *ClientDatabase) GetClient(name string) *Client {
	db.mu.RLock()
	defer db.mu.RUnlock()
	client, ok := db.clients[name]
	if !ok {
		return nil
	}
	return client.clone()
}

// ClientNames returns the registered client names sorted.
func (db *ClientDatabase) ClientNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return slices.Sorted(maps.Keys(db.clients))
}

// AuthenticateClient checks the password of a client and returns its current
// identity value.
func (db *ClientDatabase) AuthenticateClient(name, password string) (string, error) {
	client := db.GetClient(name)
	if client == nil {
		return "", fmt.Errorf("%w: unknown client", errdefs.ErrAuthentication)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid password", errdefs.ErrAuthentication)
	}
	return client.UID, nil
}

// RotateIdentity gives a client a new identity value, invalidating every
// token issued so far.
func (db *ClientDatabase) RotateIdentity(name string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	client, ok := db.clients[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", errdefs.ErrClientNotFound, name)
	}
	client.UID = uuid.NewString()
	db.logger.Info("Rotated identity of client", "client", name)
	return client.UID, nil
}

// ResolveToken returns the client a validated token was issued to, provided
// the identity value embedded in the token is still current.
func (db *ClientDatabase) ResolveToken(name, uid string) (*Client, error) {
	client := db.GetClient(name)
	if client == nil {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrClientNotFound, name)
	}
	if !client.ValidateIdentity(uid) {
		return nil, fmt.Errorf("%w: client %s", errdefs.ErrIdentityMismatch, name)
	}
	return client, nil
}
