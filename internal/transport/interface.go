package transport

import (
	"context"

	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/transport/dto"
)

// PortalCommunicator abstracts the calls made to a training portal to create
// or reacquire workshop sessions.
// Implementations: HTTP REST API against the portal, fakes in tests.
type PortalCommunicator interface {
	// RequestSession asks the portal to allocate a session in the named
	// environment. A nil session with a nil error means the portal had no
	// session to hand out.
	RequestSession(ctx context.Context, endpoint cache.PortalEndpoint, req *dto.SessionRequestDTO) (*dto.SessionDTO, error)

	// ReacquireSession asks the portal to re-issue the activation details of
	// a session already allocated to the user. It is idempotent.
	ReacquireSession(ctx context.Context, endpoint cache.PortalEndpoint, req *dto.ReacquireRequestDTO) (*dto.SessionDTO, error)

	// Close cleans up resources
	Close() error
}
