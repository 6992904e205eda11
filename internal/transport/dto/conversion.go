package dto

import (
	"maps"

	"github.com/educates/lookup-service/internal/cache"
)

// FromSnapshot converts an environment snapshot to the workshop it serves.
func FromSnapshot(snapshot cache.EnvironmentSnapshot) WorkshopDTO {
	labels := maps.Clone(snapshot.Labels)
	if labels == nil {
		labels = map[string]string{}
	}
	return WorkshopDTO{
		Name:        snapshot.Workshop,
		Title:       snapshot.Title,
		Description: snapshot.Description,
		Labels:      labels,
	}
}

// ToSessionDescriptor converts a portal session to the descriptor returned
// to API clients.
func ToSessionDescriptor(session *SessionDTO, endpoint cache.PortalEndpoint, user, tenant string) *SessionDescriptor {
	descriptor := &SessionDescriptor{
		Name:         session.Name,
		ClientUserID: user,
		URL:          session.URL,
		Workshop:     session.Workshop,
		Environment:  session.Environment,
		Namespace:    session.Namespace,
		Portal:       endpoint.Portal,
		Cluster:      endpoint.Cluster,
		TenantName:   tenant,
	}

	if descriptor.ClientUserID == "" {
		descriptor.ClientUserID = session.User
	}

	return descriptor
}
