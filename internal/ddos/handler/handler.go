// Package handler exposes the abuse-protection admin surface: blocked
// subject listings, manual block/unblock, and aggregate stats.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/ddos"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
)

// Service is the slice of the DDoS service the admin surface needs.
type Service interface {
	BlockIP(ctx context.Context, ip string) error
	UnblockIP(ctx context.Context, ip string) error
	BlockPhone(ctx context.Context, phone string) error
	UnblockPhone(ctx context.Context, phone string) error
	BlockedIPs(ctx context.Context) ([]ddos.BlockEntry, error)
	BlockedPhones(ctx context.Context) ([]ddos.BlockEntry, error)
	Stats(ctx context.Context) (*ddos.Stats, error)
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

// Register mounts abuse-protection endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ddos/stats", h.HandleStats)
	r.Get("/ddos/blocked/ips", h.HandleBlockedIPs)
	r.Get("/ddos/blocked/phones", h.HandleBlockedPhones)
	r.Post("/ddos/blocked/ips", h.HandleBlockIP)
	r.Delete("/ddos/blocked/ips", h.HandleUnblockIP)
	r.Post("/ddos/blocked/phones", h.HandleBlockPhone)
	r.Delete("/ddos/blocked/phones", h.HandleUnblockPhone)
}

// HandleStats handles GET /ddos/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to gather abuse stats", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "stats unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleBlockedIPs handles GET /ddos/blocked/ips.
func (h *Handler) HandleBlockedIPs(w http.ResponseWriter, r *http.Request) {
	h.listBlocked(w, r, h.service.BlockedIPs)
}

// HandleBlockedPhones handles GET /ddos/blocked/phones.
func (h *Handler) HandleBlockedPhones(w http.ResponseWriter, r *http.Request) {
	h.listBlocked(w, r, h.service.BlockedPhones)
}

func (h *Handler) listBlocked(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]ddos.BlockEntry, error)) {
	entries, err := list(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list blocked subjects", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"blocked": entries})
}

func (h *Handler) HandleBlockIP(w http.ResponseWriter, r *http.Request) {
	h.mutateBlock(w, r, "ip", h.service.BlockIP, http.StatusCreated)
}

func (h *Handler) HandleUnblockIP(w http.ResponseWriter, r *http.Request) {
	h.mutateBlock(w, r, "ip", h.service.UnblockIP, http.StatusNoContent)
}

func (h *Handler) HandleBlockPhone(w http.ResponseWriter, r *http.Request) {
	h.mutateBlock(w, r, "phone", h.service.BlockPhone, http.StatusCreated)
}

func (h *Handler) HandleUnblockPhone(w http.ResponseWriter, r *http.Request) {
	h.mutateBlock(w, r, "phone", h.service.UnblockPhone, http.StatusNoContent)
}

func (h *Handler) mutateBlock(w http.ResponseWriter, r *http.Request, field string, mutate func(context.Context, string) error, okStatus int) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	subject := strings.TrimSpace(body[field])
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, field+" is required"))
		return
	}
	if err := mutate(r.Context(), subject); err != nil {
		h.logger.ErrorContext(r.Context(), "block mutation failed", "subject", subject, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "block mutation failed"))
		return
	}
	h.logger.InfoContext(r.Context(), "block list updated", "kind", field, "subject", subject)
	if okStatus == http.StatusNoContent {
		w.WriteHeader(okStatus)
		return
	}
	httputil.WriteJSON(w, okStatus, map[string]string{field: subject})
}
