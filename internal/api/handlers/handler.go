package handlers

import (
	"github.com/educates/lookup-service/internal/broker"
	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/identity"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	broker  *broker.Broker
	clients *identity.ClientDatabase
	tokens  *identity.TokenIssuer
	store   *cache.Store
}

// NewHandler creates a new handler around the session broker and identity store
func NewHandler(b *broker.Broker, clients *identity.ClientDatabase, tokens *identity.TokenIssuer, store *cache.Store) *Handler {
	return &Handler{
		broker:  b,
		clients: clients,
		tokens:  tokens,
		store:   store,
	}
}
