package api

import (
	"context"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/api/handlers"
	"github.com/educates/lookup-service/internal/api/middleware"
	"github.com/educates/lookup-service/internal/identity"
)

// Server serves the lookup REST API.
type Server struct {
	httpServer *http.Server
	handlers   *handlers.Handler
}

// NewServer registers the API routes. Login and health endpoints are open,
// workshop endpoints require a bearer token and one of the listed roles.
func NewServer(addr string, handler *handlers.Handler, auth *middleware.Authenticator) *Server {
	mux := http.NewServeMux()

	readers := auth.RequireRoles(identity.RoleAdmin, identity.RoleWorkshopReader)
	requestors := auth.RequireRoles(identity.RoleAdmin, identity.RoleWorkshopRequestor)

	mux.HandleFunc("POST /auth/login", handler.PostLogin)
	mux.Handle("GET /api/v1/workshops", readers(http.HandlerFunc(handler.GetWorkshops)))
	mux.Handle("POST /api/v1/workshops", requestors(http.HandlerFunc(handler.PostWorkshop)))
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           middleware.Chain(mux, middleware.Logging),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handlers: handler,
	}
}

// Handler returns the root HTTP handler including middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger := log.FromContext(ctx)
	logger.Info("Shutting down HTTP API server")
	return s.httpServer.Shutdown(ctx)
}
