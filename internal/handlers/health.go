package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dicomkit/dicomweb-server/internal/dimseecho"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

// HealthHandler reports the server's own status plus its storage
// provider and (if configured) remote AE connectivity, retargeted from
// the teacher's single-database ping to the collaborators this server
// actually depends on.
type HealthHandler struct {
	Store        storage.Provider
	DIMSEChecker *dimseecho.Checker
}

func NewHealthHandler(store storage.Provider, checker *dimseecho.Checker) *HealthHandler {
	return &HealthHandler{Store: store, DIMSEChecker: checker}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if _, err := h.Store.SearchStudies(r.Context(), storage.StorageQuery{Limit: 1}); err != nil {
		response.Services["storage"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["storage"] = "healthy"
	}

	if h.DIMSEChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.DIMSEChecker.Verify(ctx); err != nil {
			response.Services["dimse"] = "unhealthy"
			response.Status = "degraded"
		} else {
			response.Services["dimse"] = "healthy"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Store.SearchStudies(r.Context(), storage.StorageQuery{Limit: 1}); err != nil {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
