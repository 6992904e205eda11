package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educates/lookup-service/internal/api/handlers"
	"github.com/educates/lookup-service/internal/api/middleware"
	"github.com/educates/lookup-service/internal/broker"
	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/identity"
	"github.com/educates/lookup-service/internal/transport/dto"
)

// fakePortals hands out a session for every request unless full is set.
type fakePortals struct {
	full bool
}

func (f *fakePortals) RequestSession(ctx context.Context, endpoint cache.PortalEndpoint, req *dto.SessionRequestDTO) (*dto.SessionDTO, error) {
	if f.full {
		return nil, nil
	}
	return &dto.SessionDTO{
		Name:        req.Environment + "-w01",
		User:        req.User,
		URL:         endpoint.URL + "/workshops/session/" + req.Environment + "-w01/activate/",
		Workshop:    "lab1",
		Environment: req.Environment,
		Namespace:   req.Environment + "-w01",
	}, nil
}

func (f *fakePortals) ReacquireSession(ctx context.Context, endpoint cache.PortalEndpoint, req *dto.ReacquireRequestDTO) (*dto.SessionDTO, error) {
	return nil, nil
}

func (f *fakePortals) Close() error { return nil }

type testServer struct {
	handler http.Handler
	clients *identity.ClientDatabase
	tokens  *identity.TokenIssuer
	store   *cache.Store
	portals *fakePortals
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := cache.NewStore(logr.Discard())
	store.UpsertCluster(cache.ClusterConfiguration{Name: "local"})
	store.UpsertPortal(cache.PortalState{Cluster: "local", Name: "p1", URL: "https://p1.example.com"})
	_, err := store.UpsertEnvironment(cache.EnvironmentState{
		Cluster: "local", Portal: "p1", Name: "e1", Workshop: "lab1", Title: "Lab One",
		Capacity: 2, Phase: cache.EnvironmentPhaseRunning,
	})
	require.NoError(t, err)
	require.NoError(t, store.AddSession(cache.SessionState{
		Cluster: "local", Portal: "p1", Environment: "e1", Name: "e1-w00", User: "someone", Phase: cache.SessionPhaseAllocated,
	}))
	require.NoError(t, store.AddSession(cache.SessionState{
		Cluster: "local", Portal: "p1", Environment: "e1", Name: "e1-w02", Phase: cache.SessionPhaseAvailable,
	}))

	tenants := identity.NewTenantDatabase(logr.Discard())
	require.NoError(t, tenants.UpdateTenant(&identity.Tenant{Name: "acme", Portals: identity.Selector{MatchNames: []string{"p1"}}}))
	require.NoError(t, tenants.UpdateTenant(&identity.Tenant{Name: "globex", Portals: identity.Selector{MatchNames: []string{"p9"}}}))

	clients := identity.NewClientDatabase(logr.Discard())
	for _, config := range []identity.ClientConfig{
		{Name: "acme-app", Password: "secret", Roles: []string{identity.RoleWorkshopReader, identity.RoleWorkshopRequestor}, Tenants: []string{"acme"}},
		{Name: "reader", Password: "secret", Roles: []string{identity.RoleWorkshopReader}, Tenants: []string{"acme"}},
		{Name: "root", Password: "secret", Roles: []string{identity.RoleAdmin}},
	} {
		_, err := clients.UpdateClient(config)
		require.NoError(t, err)
	}

	tokens, err := identity.NewTokenIssuer([]byte("test-secret"), 0)
	require.NoError(t, err)

	portals := &fakePortals{}
	b := broker.NewBroker(store, tenants, portals)
	handler := handlers.NewHandler(b, clients, tokens, store)
	server := NewServer(":0", handler, &middleware.Authenticator{Tokens: tokens, Clients: clients})

	return &testServer{handler: server.Handler(), clients: clients, tokens: tokens, store: store, portals: portals}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	rr := s.do(t, "POST", "/auth/login", "", map[string]string{"username": username, "password": "secret"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var response dto.LoginResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "Bearer", response.TokenType)
	assert.NotZero(t, response.ExpiresAt)
	return response.AccessToken
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	assert.NotEmpty(t, s.login(t, "acme-app"))

	rr := s.do(t, "POST", "/auth/login", "", map[string]string{"username": "acme-app", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, "POST", "/auth/login", "", map[string]string{"username": "acme-app"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestWorkshopEndToEnd(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "acme-app")

	rr := s.do(t, "POST", "/api/v1/workshops", token, map[string]string{"tenantName": "acme", "workshopName": "lab1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var descriptor dto.SessionDescriptor
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &descriptor))
	assert.Equal(t, "acme", descriptor.TenantName)
	assert.Equal(t, "e1", descriptor.Environment)
	assert.Equal(t, "e1-w01", descriptor.Name)
	assert.Equal(t, "https://p1.example.com/workshops/session/e1-w01/activate/", descriptor.URL)
}

func TestRequestWorkshopErrors(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "acme-app")
	reader := s.login(t, "reader")

	tests := []struct {
		name     string
		token    string
		body     map[string]string
		expected int
	}{
		{name: "missing workshop", token: token, body: map[string]string{"tenantName": "acme"}, expected: http.StatusBadRequest},
		{name: "missing tenant", token: token, body: map[string]string{"workshopName": "lab1"}, expected: http.StatusBadRequest},
		{name: "tenant not permitted", token: token, body: map[string]string{"tenantName": "globex", "workshopName": "lab1"}, expected: http.StatusForbidden},
		{name: "unknown workshop", token: token, body: map[string]string{"tenantName": "acme", "workshopName": "lab9"}, expected: http.StatusServiceUnavailable},
		{name: "role missing", token: reader, body: map[string]string{"tenantName": "acme", "workshopName": "lab1"}, expected: http.StatusForbidden},
		{name: "no token", token: "", body: map[string]string{"tenantName": "acme", "workshopName": "lab1"}, expected: http.StatusBadRequest},
		{name: "invalid token", token: "invalid", body: map[string]string{"tenantName": "acme", "workshopName": "lab1"}, expected: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, "POST", "/api/v1/workshops", tt.token, tt.body)
			assert.Equal(t, tt.expected, rr.Code, rr.Body.String())
		})
	}
}

func TestRequestWorkshopNoCapacity(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.UpsertEnvironment(cache.EnvironmentState{
		Cluster: "local", Portal: "p1", Name: "e2", Workshop: "lab1", Capacity: 1, Phase: cache.EnvironmentPhaseRunning,
	})
	require.NoError(t, err)
	require.NoError(t, s.store.AddSession(cache.SessionState{
		Cluster: "local", Portal: "p1", Environment: "e2", Name: "e2-w00", Phase: cache.SessionPhaseAllocated,
	}))
	require.NoError(t, s.store.AddSession(cache.SessionState{
		Cluster: "local", Portal: "p1", Environment: "e1", Name: "e1-w03", Phase: cache.SessionPhaseAllocated,
	}))

	token := s.login(t, "acme-app")

	// The cache says full but the portal still has a session to hand out.
	rr := s.do(t, "POST", "/api/v1/workshops", token, map[string]string{"tenantName": "acme", "workshopName": "lab1"})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	s.portals.full = true
	rr = s.do(t, "POST", "/api/v1/workshops", token, map[string]string{"tenantName": "acme", "workshopName": "lab1"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRotatedClientTokenRejected(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "acme-app")

	_, err := s.clients.RotateIdentity("acme-app")
	require.NoError(t, err)

	rr := s.do(t, "GET", "/api/v1/workshops?tenantName=acme", token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListWorkshops(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, "GET", "/api/v1/workshops?tenantName=acme", s.login(t, "reader"), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var list dto.WorkshopListDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Workshops, 1)
	assert.Equal(t, "lab1", list.Workshops[0].Name)
	assert.Equal(t, "Lab One", list.Workshops[0].Title)

	rr = s.do(t, "GET", "/api/v1/workshops?tenantName=globex", s.login(t, "reader"), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, "GET", "/api/v1/workshops", s.login(t, "reader"), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, "GET", "/api/v1/workshops", s.login(t, "root"), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/readyz", "", nil).Code)

	s.store.UpsertCluster(cache.ClusterConfiguration{Name: "remote"})
	s.store.RemovePortal("local", "p1")
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, "GET", "/readyz", "", nil).Code)
}
