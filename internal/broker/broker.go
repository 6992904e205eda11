package broker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/errdefs"
	"github.com/educates/lookup-service/internal/identity"
	"github.com/educates/lookup-service/internal/metrics"
	"github.com/educates/lookup-service/internal/transport"
	"github.com/educates/lookup-service/internal/transport/dto"
)

// DefaultPortalTimeout bounds each call made to a training portal.
const DefaultPortalTimeout = 5 * time.Second

// SessionRequest is a request for a workshop session made by a client on
// behalf of one of its users.
type SessionRequest struct {
	TenantName   string
	WorkshopName string
	UserID       string
	UserEmail    string
	FirstName    string
	LastName     string
	IndexURL     string
	AnalyticsURL string
	Parameters   []dto.Parameter
}

// Broker resolves session requests to a workshop environment and delegates
// session creation to the training portal hosting it.
type Broker struct {
	Store   *cache.Store
	Tenants *identity.TenantDatabase
	Engine  *DecisionEngine
	Portals transport.PortalCommunicator
	Ledger  *AllocationLedger
	Timeout time.Duration
}

func NewBroker(store *cache.Store, tenants *identity.TenantDatabase, portals transport.PortalCommunicator) *Broker {
	return &Broker{
		Store:   store,
		Tenants: tenants,
		Engine:  &DecisionEngine{},
		Portals: portals,
		Timeout: DefaultPortalTimeout,
	}
}

// AccessiblePortals returns the portals the client may use for the tenant.
// Admins may leave the tenant empty to use every portal.
func (b *Broker) AccessiblePortals(client *identity.Client, tenantName string) ([]*cache.Portal, error) {
	if tenantName == "" {
		if client.IsAdmin() {
			return b.Store.Portals(), nil
		}
		return nil, fmt.Errorf("%w: tenant name is required", errdefs.ErrValidation)
	}

	if !client.AllowsTenant(tenantName) {
		return nil, fmt.Errorf("%w: client %s, tenant %s", errdefs.ErrTenantAccessDenied, client.Name, tenantName)
	}

	tenant := b.Tenants.GetTenant(tenantName)
	if tenant == nil {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrTenantNotFound, tenantName)
	}

	return tenant.PortalsWhichAreAccessible(b.Store), nil
}

// ListWorkshops returns the workshops offered by running environments of
// the accessible portals, one entry per workshop name.
func (b *Broker) ListWorkshops(ctx context.Context, client *identity.Client, tenantName string) ([]dto.WorkshopDTO, error) {
	logger := log.FromContext(ctx).WithName("broker")

	portals, err := b.AccessiblePortals(client, tenantName)
	if err != nil {
		return nil, err
	}

	workshops := make(map[string]dto.WorkshopDTO)
	for _, portal := range portals {
		for _, environment := range portal.RunningEnvironments() {
			workshop := dto.FromSnapshot(environment.Snapshot())
			workshops[workshop.Name] = workshop
		}
	}

	result := make([]dto.WorkshopDTO, 0, len(workshops))
	for _, workshop := range workshops {
		result = append(result, workshop)
	}
	slices.SortFunc(result, func(a, c dto.WorkshopDTO) int {
		return strings.Compare(a.Name, c.Name)
	})

	logger.V(1).Info("Listed workshops", "client", client.Name, "tenant", tenantName, "count", len(result))
	return result, nil
}

// RequestWorkshopSession reacquires the user's existing session for the
// workshop or places a new one. Selection is retried once against an
// alternate environment when the chosen portal fails to deliver.
func (b *Broker) RequestWorkshopSession(ctx context.Context, client *identity.Client, req SessionRequest) (*dto.SessionDescriptor, error) {
	logger := log.FromContext(ctx).WithName("broker").WithValues(
		"client", client.Name, "tenant", req.TenantName, "workshop", req.WorkshopName)

	if req.WorkshopName == "" {
		return nil, fmt.Errorf("%w: workshop name is required", errdefs.ErrValidation)
	}

	accessible, err := b.AccessiblePortals(client, req.TenantName)
	if err != nil {
		return nil, err
	}

	var portals []*cache.Portal
	for _, portal := range accessible {
		if portal.HostsWorkshop(req.WorkshopName) {
			portals = append(portals, portal)
		}
	}
	if len(portals) == 0 {
		metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeNotAvailable)
		return nil, fmt.Errorf("%w: %s", errdefs.ErrWorkshopNotAvailable, req.WorkshopName)
	}

	if req.UserID != "" {
		descriptor, err := b.reacquire(ctx, portals, req)
		if err != nil {
			metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeUnknown)
			return nil, err
		}
		if descriptor != nil {
			metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeReacquired)
			logger.Info("Reacquired existing workshop session", "session", descriptor.Name, "user", req.UserID)
			return descriptor, nil
		}
	}

	candidates := b.Ledger.Apply(b.Store, b.Store.Snapshot(req.WorkshopName, portals))
	if len(candidates) == 0 {
		metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeCapacityUnavailable)
		return nil, fmt.Errorf("%w: %s", errdefs.ErrCapacityUnavailable, req.WorkshopName)
	}

	// The cache may lag behind the portals, so a workshop that looks full is
	// still tried on its first candidate.
	selected := b.Engine.SelectEnvironment(ctx, req.WorkshopName, candidates)
	if selected == nil {
		selected = &candidates[0]
		logger.V(1).Info("No environment has room, trying first candidate", "environment", selected.Key())
	}

	descriptor, err := b.delegate(ctx, *selected, req)
	if err == nil && descriptor != nil {
		return b.created(ctx, *selected, descriptor, req), nil
	}
	if errors.Is(err, errdefs.ErrOutcomeUnknown) {
		metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeUnknown)
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}
	lastErr := err

	logger.Info("Session request failed, trying alternate environment",
		"environment", selected.Key(), "error", errorString(err))

	remaining := slices.DeleteFunc(slices.Clone(candidates), func(candidate cache.EnvironmentSnapshot) bool {
		return candidate.Key() == selected.Key()
	})
	if len(remaining) != 0 {
		alternate := b.Engine.SelectEnvironment(ctx, req.WorkshopName, remaining)
		if alternate == nil {
			alternate = &remaining[0]
		}

		descriptor, err = b.delegate(ctx, *alternate, req)
		if err == nil && descriptor != nil {
			return b.created(ctx, *alternate, descriptor, req), nil
		}
		if errors.Is(err, errdefs.ErrOutcomeUnknown) {
			metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeUnknown)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	if errors.Is(lastErr, errdefs.ErrUpstreamUnreachable) {
		metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeUpstreamUnreachable)
		logger.Error(lastErr, "Training portals unreachable for session request")
		return nil, lastErr
	}

	metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeCapacityUnavailable)
	logger.Info("No workshop session could be allocated")
	return nil, fmt.Errorf("%w: %s", errdefs.ErrCapacityUnavailable, req.WorkshopName)
}

func (b *Broker) created(ctx context.Context, snapshot cache.EnvironmentSnapshot, descriptor *dto.SessionDescriptor, req SessionRequest) *dto.SessionDescriptor {
	b.Ledger.Record(snapshot, descriptor.Name)
	metrics.RecordSessionRequest(req.TenantName, req.WorkshopName, metrics.OutcomeCreated)
	log.FromContext(ctx).WithName("broker").Info("Allocated workshop session",
		"workshop", req.WorkshopName,
		"tenant", req.TenantName,
		"environment", snapshot.Key(),
		"session", descriptor.Name)
	return descriptor
}

// delegate asks the portal owning the environment for a session. A nil
// descriptor with nil error means the portal had nothing to hand out. A
// caller gone before the portal was contacted gets its context error back;
// one gone during the call gets ErrOutcomeUnknown unless the portal answered.
func (b *Broker) delegate(ctx context.Context, snapshot cache.EnvironmentSnapshot, req SessionRequest) (*dto.SessionDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	session, err := b.Portals.RequestSession(callCtx, snapshot.Endpoint, &dto.SessionRequestDTO{
		Environment:  snapshot.Name,
		User:         req.UserID,
		Email:        req.UserEmail,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IndexURL:     req.IndexURL,
		AnalyticsURL: req.AnalyticsURL,
		Parameters:   req.Parameters,
	})
	if err == nil && session != nil {
		return dto.ToSessionDescriptor(session, snapshot.Endpoint, req.UserID, req.TenantName), nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: environment %s: %v", errdefs.ErrOutcomeUnknown, snapshot.Key(), ctx.Err())
	}
	if err != nil {
		if !errors.Is(err, errdefs.ErrUpstreamUnreachable) {
			err = fmt.Errorf("%w: %v", errdefs.ErrUpstreamUnreachable, err)
		}
		return nil, err
	}
	return nil, nil
}

// reacquire looks for a session of the workshop already owned by the user
// and asks its portal to hand it out again.
func (b *Broker) reacquire(ctx context.Context, portals []*cache.Portal, req SessionRequest) (*dto.SessionDescriptor, error) {
	logger := log.FromContext(ctx).WithName("broker")

	for _, portal := range portals {
		session, ok := portal.FindExistingSessionForUser(req.UserID, req.WorkshopName)
		if !ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		endpoint := portal.Endpoint()
		callCtx, cancel := context.WithTimeout(ctx, b.timeout())
		reacquired, err := b.Portals.ReacquireSession(callCtx, endpoint, &dto.ReacquireRequestDTO{
			Session:  session.Name,
			IndexURL: req.IndexURL,
		})
		cancel()

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: session %s: %v", errdefs.ErrOutcomeUnknown, session.Name, ctx.Err())
		}
		if err != nil {
			logger.Info("Failed to reacquire workshop session",
				"portal", portal.Name(), "session", session.Name, "error", err.Error())
			continue
		}
		if reacquired == nil {
			continue
		}

		return dto.ToSessionDescriptor(reacquired, endpoint, req.UserID, req.TenantName), nil
	}

	return nil, nil
}

func (b *Broker) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultPortalTimeout
	}
	return b.Timeout
}

func errorString(err error) string {
	if err == nil {
		return "no session returned"
	}
	return err.Error()
}
