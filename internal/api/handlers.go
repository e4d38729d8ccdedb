package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sdiallo/browserpilot/internal/orchestrator"
	"github.com/sdiallo/browserpilot/pkg/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	orch *orchestrator.Orchestrator
}

// NewHandler creates a new HTTP handler
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// Scan handles POST /v1/scan
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	result := h.orch.Scan(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// ListContexts handles GET /v1/contexts
func (h *Handler) ListContexts(w http.ResponseWriter, r *http.Request) {
	typeFilter := models.ContextType(r.URL.Query().Get("type"))

	contexts := h.orch.ListContexts(typeFilter)
	if contexts == nil {
		contexts = []models.Context{}
	}
	writeJSON(w, http.StatusOK, contexts)
}

// GetCurrent handles GET /v1/contexts/current. No current context is an
// expected state, not an error: the payload says so explicitly.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	current, ok := h.orch.Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"current": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": current})
}

// GetContext handles GET /v1/contexts/{id}
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	contexts := h.orch.ListContexts("")
	for _, c := range contexts {
		if c.ID == id {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	http.Error(w, "context not found", http.StatusNotFound)
}

// SwitchTo handles POST /v1/contexts/activate. A miss returns
// switched=false rather than an error status.
func (h *Handler) SwitchTo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	c, ok := h.orch.SwitchTo(r.Context(), req.Query)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"switched": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"switched": true, "context": c})
}

// DetectCapabilities handles GET /v1/contexts/{id}/capabilities
func (h *Handler) DetectCapabilities(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	profile, err := h.orch.DetectCapabilities(r.Context(), id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrContextNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// SelectMode handles POST /v1/select
func (h *Handler) SelectMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operation  models.OperationKind `json:"operation"`
		ContextIDs []string             `json:"contextIds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Operation == "" {
		http.Error(w, "operation is required", http.StatusBadRequest)
		return
	}

	candidates, err := h.orch.SelectMode(r.Context(), req.Operation, req.ContextIDs)
	if err != nil {
		if errors.Is(err, orchestrator.ErrContextNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// An empty candidate list is a valid answer: nothing usable.
	writeJSON(w, http.StatusOK, map[string]any{
		"operation":  req.Operation,
		"candidates": candidates,
	})
}

// ClearCapabilityCache handles DELETE /v1/capabilities/cache
func (h *Handler) ClearCapabilityCache(w http.ResponseWriter, r *http.Request) {
	h.orch.ClearCapabilityCache()
	w.WriteHeader(http.StatusNoContent)
}

// CacheStats handles GET /v1/capabilities/cache
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.CacheStats())
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
