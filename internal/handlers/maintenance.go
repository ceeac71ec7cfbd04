package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/easy-khana/api/internal/platform/httpx"
	"github.com/easy-khana/api/internal/services"
)

// MaintenanceHandlers exposes scheduler-triggered jobs under /internal.
type MaintenanceHandlers struct {
	system services.SystemService
}

// NewMaintenanceHandlers constructs maintenance handlers.
func NewMaintenanceHandlers(system services.SystemService) *MaintenanceHandlers {
	return &MaintenanceHandlers{system: system}
}

// Routes registers maintenance endpoints. Service authentication is applied by the router.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/pending-payments/sweep", h.sweepPendingPayments)
}

type sweepResponse struct {
	Removed int `json:"removed"`
}

func (h *MaintenanceHandlers) sweepPendingPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "maintenance service unavailable", http.StatusServiceUnavailable))
		return
	}
	removed, err := h.system.SweepPendingPayments(ctx)
	if err != nil {
		if errors.Is(err, services.ErrSystemUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "pending payment sweeper not configured", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("sweep_failed", "failed to sweep pending payments", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sweepResponse{Removed: removed})
}
