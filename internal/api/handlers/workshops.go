package handlers

import (
	"encoding/json"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/api/middleware"
	"github.com/educates/lookup-service/internal/broker"
	"github.com/educates/lookup-service/internal/transport/dto"
)

// GetWorkshops handles GET /api/v1/workshops
func (h *Handler) GetWorkshops(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithName("workshop-handler")

	client, ok := middleware.GetClient(ctx)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Could not determine client")
		return
	}

	tenantName := r.URL.Query().Get("tenantName")

	workshops, err := h.broker.ListWorkshops(ctx, client, tenantName)
	if err != nil {
		logger.Info("Workshop listing rejected", "client", client.Name, "tenant", tenantName, "error", err.Error())
		respondWithErr(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, dto.WorkshopListDTO{Workshops: workshops})
}

// PostWorkshop handles POST /api/v1/workshops
// The broker selects an environment and the owning training portal creates
// the session inline, so the response carries the session details.
func (h *Handler) PostWorkshop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithName("workshop-handler")

	client, ok := middleware.GetClient(ctx)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Could not determine client")
		return
	}

	body, err := readBody(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var reqDTO dto.WorkshopRequestDTO
	if err := json.Unmarshal(body, &reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if reqDTO.WorkshopName == "" {
		respondWithError(w, http.StatusBadRequest, "workshopName is required")
		return
	}
	if reqDTO.TenantName == "" && !client.IsAdmin() {
		respondWithError(w, http.StatusBadRequest, "tenantName is required")
		return
	}

	descriptor, err := h.broker.RequestWorkshopSession(ctx, client, broker.SessionRequest{
		TenantName:   reqDTO.TenantName,
		WorkshopName: reqDTO.WorkshopName,
		UserID:       reqDTO.ClientUserID,
		IndexURL:     reqDTO.ClientIndexURL,
		Parameters:   reqDTO.WorkshopParams,
	})
	if err != nil {
		logger.Info("Workshop session request failed",
			"client", client.Name,
			"tenant", reqDTO.TenantName,
			"workshop", reqDTO.WorkshopName,
			"error", err.Error())
		respondWithErr(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, descriptor)
}
