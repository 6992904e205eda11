package handlers

import (
	"encoding/json"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/transport/dto"
)

// PostLogin handles POST /auth/login
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithName("login-handler")

	body, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var login dto.LoginRequestDTO
	if err := json.Unmarshal(body, &login); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if login.Username == "" || login.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	uid, err := h.clients.AuthenticateClient(login.Username, login.Password)
	if err != nil {
		logger.Info("Client login failed", "client", login.Username)
		respondWithError(w, http.StatusUnauthorized, "Invalid username/password")
		return
	}

	token, expiresAt, err := h.tokens.Issue(login.Username, uid)
	if err != nil {
		logger.Error(err, "Failed to issue access token", "client", login.Username)
		respondWithError(w, http.StatusInternalServerError, "Failed to issue access token")
		return
	}

	logger.Info("Issued access token", "client", login.Username, "expiresAt", expiresAt)

	respondWithJSON(w, http.StatusOK, dto.LoginResponseDTO{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Unix(),
	})
}
