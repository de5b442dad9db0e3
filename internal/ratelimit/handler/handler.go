// Package handler exposes quota consumption views: the per-tenant usage
// stats the dashboard renders and the approaching-limit warning flag.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/ratelimit/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
)

// Service is the slice of the rate limiter the usage views need.
type Service interface {
	GetUsageStats(ctx context.Context, tenantID id.TenantID) (*models.UsageStats, error)
	IsApproachingLimit(ctx context.Context, tenantID id.TenantID, thresholdPercent int) (bool, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts usage endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tenants/{tenantID}/usage", h.HandleUsage)
}

// HandleUsage handles GET /tenants/{tenantID}/usage.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return
	}

	stats, err := h.service.GetUsageStats(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "usage stats lookup failed", "tenant_id", tenantID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "usage stats unavailable"))
		return
	}
	approaching, err := h.service.IsApproachingLimit(ctx, tenantID, 0)
	if err != nil {
		h.logger.ErrorContext(ctx, "approaching-limit check failed", "tenant_id", tenantID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "usage stats unavailable"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"usage":             stats,
		"approaching_limit": approaching,
	})
}
