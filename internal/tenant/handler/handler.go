// Package handler exposes tenant lifecycle operations for the back office:
// manual suspension, reactivation, bans, and a status view.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/tenant/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/sentinel"
)

// Guard is the slice of the tenant guard the admin surface needs.
type Guard interface {
	CheckTenantStatus(ctx context.Context, tenantID id.TenantID) (*models.StatusResult, error)
	SuspendTenant(ctx context.Context, tenantID id.TenantID, reason string) error
	ReactivateTenant(ctx context.Context, tenantID id.TenantID) error
	BanTenant(ctx context.Context, tenantID id.TenantID, reason string) error
	CheckPaymentStatus(ctx context.Context, tenantID id.TenantID) (bool, error)
}

type Handler struct {
	guard  Guard
	logger *slog.Logger
}

func New(guard Guard, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{guard: guard, logger: logger}
}

// Register mounts tenant lifecycle endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tenants/{tenantID}/status", h.HandleStatus)
	r.Post("/tenants/{tenantID}/suspend", h.HandleSuspend)
	r.Post("/tenants/{tenantID}/reactivate", h.HandleReactivate)
	r.Post("/tenants/{tenantID}/ban", h.HandleBan)
	r.Post("/tenants/{tenantID}/payment-check", h.HandlePaymentCheck)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	result, err := h.guard.CheckTenantStatus(r.Context(), tenantID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "tenant status lookup failed", "tenant_id", tenantID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "status lookup failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "suspended", func(ctx context.Context, tenantID id.TenantID, reason string) error {
		if reason == "" {
			return dErrors.New(dErrors.CodeBadRequest, "reason is required")
		}
		return h.guard.SuspendTenant(ctx, tenantID, reason)
	})
}

func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reactivated", func(ctx context.Context, tenantID id.TenantID, _ string) error {
		return h.guard.ReactivateTenant(ctx, tenantID)
	})
}

func (h *Handler) HandleBan(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "banned", func(ctx context.Context, tenantID id.TenantID, reason string) error {
		if reason == "" {
			return dErrors.New(dErrors.CodeBadRequest, "reason is required")
		}
		return h.guard.BanTenant(ctx, tenantID, reason)
	})
}

// HandlePaymentCheck handles POST /tenants/{tenantID}/payment-check, run by
// the billing cron after processing a payment cycle.
func (h *Handler) HandlePaymentCheck(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	inGoodStanding, err := h.guard.CheckPaymentStatus(r.Context(), tenantID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "payment check failed", "tenant_id", tenantID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "payment check failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"in_good_standing": inGoodStanding})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, id.TenantID, string) error) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	if err := apply(r.Context(), tenantID, strings.TrimSpace(body.Reason)); err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeBadRequest {
			httputil.WriteError(w, err)
			return
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "tenant not found"))
			return
		}
		h.logger.ErrorContext(r.Context(), "tenant transition failed",
			"tenant_id", tenantID, "action", action, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant transition failed"))
		return
	}
	h.logger.InfoContext(r.Context(), "tenant "+action, "tenant_id", tenantID, "reason", body.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return id.TenantID{}, false
	}
	return tenantID, true
}
