package handlers

import "net/http"

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Readyz handles GET /readyz. The service is ready once a configured cluster
// has reported a training portal, or when no cluster is configured.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.store.Ready() {
		respondWithError(w, http.StatusServiceUnavailable, "Capacity cache not synchronized")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
