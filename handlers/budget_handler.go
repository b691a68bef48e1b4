package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/llm-gateway/internal/runtimeconfig"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/budget"
	"github.com/upb/llm-gateway/utils"
)

// BudgetHandler exposes read and reset operations over budgets.
type BudgetHandler struct {
	snapshots *runtimeconfig.Store
	budgets   *budget.Service
}

func NewBudgetHandler(snapshots *runtimeconfig.Store, budgets *budget.Service) *BudgetHandler {
	return &BudgetHandler{snapshots: snapshots, budgets: budgets}
}

// List returns every budget with live spend and current period bounds.
func (h *BudgetHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Current()
	now := time.Now()

	out := make([]*models.Budget, 0, len(snap.Budgets))
	for _, b := range snap.Budgets {
		status, err := h.budgets.Status(r.Context(), b, now)
		if err != nil {
			utils.WriteDomainError(w, err)
			return
		}
		out = append(out, status)
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"budgets": out})
}

// Reset zeroes the named budget's current-period spend.
func (h *BudgetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := h.snapshots.Current()

	for _, b := range snap.Budgets {
		if b.ID == id {
			if err := h.budgets.Reset(r.Context(), b, time.Now()); err != nil {
				utils.WriteDomainError(w, err)
				return
			}
			utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset", "budget_id": id})
			return
		}
	}
	utils.WriteDomainError(w, &services.DomainError{
		Type:    services.ErrorTypeValidation,
		Code:    "input_validation_failed",
		Message: "unknown budget id",
		Details: map[string]interface{}{"budget_id": id},
	})
}
