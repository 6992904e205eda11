package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/errdefs"
	"github.com/educates/lookup-service/internal/identity"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ClientKey is the context key for the authenticated client
	ClientKey contextKey = "client"
)

// Authenticator validates bearer tokens against the identity store.
type Authenticator struct {
	Tokens  *identity.TokenIssuer
	Clients *identity.ClientDatabase
}

// RequireRoles returns middleware that admits only requests carrying a valid
// token of a known client holding at least one of the roles.
func (a *Authenticator) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := log.FromContext(r.Context()).WithName("authenticator")

			token, err := bearerToken(r)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}

			name, uid, err := a.Tokens.Validate(token)
			if err != nil {
				logger.V(1).Info("Rejected access token", "error", err.Error())
				if errors.Is(err, errdefs.ErrTokenExpired) {
					respondWithError(w, http.StatusForbidden, errdefs.ErrTokenExpired.Error())
					return
				}
				respondWithError(w, http.StatusForbidden, errdefs.ErrTokenInvalid.Error())
				return
			}

			client, err := a.Clients.ResolveToken(name, uid)
			if err != nil {
				logger.Info("Rejected access token of unknown or rotated client", "client", name)
				if errors.Is(err, errdefs.ErrClientNotFound) {
					respondWithError(w, http.StatusForbidden, errdefs.ErrClientNotFound.Error())
					return
				}
				respondWithError(w, http.StatusForbidden, errdefs.ErrIdentityMismatch.Error())
				return
			}

			setClientName(r.Context(), client.Name)

			if len(client.HasAnyRole(roles...)) == 0 {
				logger.Info("Client lacks required role", "client", client.Name, "required", roles)
				respondWithError(w, http.StatusForbidden, errdefs.ErrAuthorization.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errdefs.ErrTokenMissing
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("malformed authorization header")
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", errors.New("malformed authorization header")
	}

	return token, nil
}

// GetClient retrieves the authenticated client from request context
func GetClient(ctx context.Context) (*identity.Client, bool) {
	client, ok := ctx.Value(ClientKey).(*identity.Client)
	return client, ok
}

// Chain applies middleware in reverse order (last middleware executes first)
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
