package handlers

import (
	"net/http"
	"time"

	"github.com/upb/llm-gateway/internal/runtimeconfig"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/utils"
)

// HealthHandler serves liveness and config/provider status endpoints.
type HealthHandler struct {
	snapshots *runtimeconfig.Store
	registry  *providers.Registry
	startedAt time.Time
}

func NewHealthHandler(snapshots *runtimeconfig.Store, registry *providers.Registry) *HealthHandler {
	return &HealthHandler{snapshots: snapshots, registry: registry, startedAt: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Status reports the loaded config version and registered providers.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Current()
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"config_version":   snap.Version,
		"config_loaded_at": snap.LoadedAt.UTC().Format(time.RFC3339),
		"rules":            len(snap.Rules),
		"budgets":          len(snap.Budgets),
		"routes":           len(snap.Routes),
		"providers":        h.registry.Names(),
	})
}
