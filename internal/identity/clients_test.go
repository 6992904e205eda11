package identity

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/educates/lookup-service/internal/errdefs"
)

func TestUpdateClientAssignsIdentity(t *testing.T) {
	db := NewClientDatabase(logr.Discard())

	client, err := db.UpdateClient(ClientConfig{Name: "robot", Password: "secret", Roles: []string{RoleWorkshopReader}})
	require.NoError(t, err)
	assert.NotEmpty(t, client.UID)
	assert.NotEqual(t, "secret", client.PasswordHash)

	// Re-applying the same plain text password keeps the identity.
	again, err := db.UpdateClient(ClientConfig{Name: "robot", Password: "secret", Roles: []string{RoleAdmin}})
	require.NoError(t, err)
	assert.Equal(t, client.UID, again.UID)
	assert.Equal(t, []string{RoleAdmin}, again.Roles)

	// A password change rotates it.
	changed, err := db.UpdateClient(ClientConfig{Name: "robot", Password: "other"})
	require.NoError(t, err)
	assert.NotEqual(t, client.UID, changed.UID)
}

func TestUpdateClientAcceptsBcryptHash(t *testing.T) {
	db := NewClientDatabase(logr.Discard())
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	client, err := db.UpdateClient(ClientConfig{Name: "robot", Password: string(hash)})
	require.NoError(t, err)
	assert.Equal(t, string(hash), client.PasswordHash)

	uid, err := db.AuthenticateClient("robot", "secret")
	require.NoError(t, err)
	assert.Equal(t, client.UID, uid)

	_, err = db.UpdateClient(ClientConfig{Name: "broken", Password: "$2notahash"})
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestUpdateClientValidation(t *testing.T) {
	db := NewClientDatabase(logr.Discard())

	_, err := db.UpdateClient(ClientConfig{Password: "secret"})
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = db.UpdateClient(ClientConfig{Name: "robot"})
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestAuthenticateClient(t *testing.T) {
	db := NewClientDatabase(logr.Discard())
	_, err := db.UpdateClient(ClientConfig{Name: "robot", Password: "secret"})
	require.NoError(t, err)

	_, err = db.AuthenticateClient("robot", "wrong")
	assert.ErrorIs(t, err, errdefs.ErrAuthentication)

	_, err = db.AuthenticateClient("nobody", "secret")
	assert.ErrorIs(t, err, errdefs.ErrAuthentication)
}

func TestResolveToken(t *testing.T) {
	db := NewClientDatabase(logr.Discard())
	client, err := db.UpdateClient(ClientConfig{Name: "robot", Password: "secret"})
	require.NoError(t, err)

	resolved, err := db.ResolveToken("robot", client.UID)
	require.NoError(t, err)
	assert.Equal(t, "robot", resolved.Name)

	_, err = db.ResolveToken("robot", "stale")
	assert.ErrorIs(t, err, errdefs.ErrIdentityMismatch)

	db.RemoveClient("robot")
	_, err = db.ResolveToken("robot", client.UID)
	assert.ErrorIs(t, err, errdefs.ErrClientNotFound)
}

func TestClientRolesAndTenants(t *testing.T) {
	client := &Client{Name: "robot", Roles: []string{RoleWorkshopReader}, Tenants: []string{"acme"}}

	assert.Equal(t, []string{RoleWorkshopReader}, client.HasAnyRole(RoleAdmin, RoleWorkshopReader))
	assert.Empty(t, client.HasAnyRole(RoleWorkshopRequestor))
	assert.True(t, client.AllowsTenant("acme"))
	assert.False(t, client.AllowsTenant("globex"))

	admin := &Client{Name: "root", Roles: []string{RoleAdmin}}
	assert.True(t, admin.AllowsTenant("globex"))
}

func TestGetClientReturnsCopy(t *testing.T) {
	db := NewClientDatabase(logr.Discard())
	_, err := db.UpdateClient(ClientConfig{Name: "robot", Password: "secret", Roles: []string{RoleWorkshopReader}})
	require.NoError(t, err)

	client := db.GetClient("robot")
	client.Roles[0] = RoleAdmin

	assert.Equal(t, []string{RoleWorkshopReader}, db.GetClient("robot").Roles)
	assert.Nil(t, db.GetClient("nobody"))
	assert.Equal(t, []string{"robot"}, db.ClientNames())
}
