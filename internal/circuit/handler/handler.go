// Package handler exposes circuit breaker state for operators: a status
// listing and a manual state override for incident response.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/circuit"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
)

type Handler struct {
	registry *circuit.Registry
	logger   *slog.Logger
}

func New(registry *circuit.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// Register mounts breaker endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/breakers", h.HandleList)
	r.Put("/breakers/{service}/state", h.HandleSetState)
}

// HandleList handles GET /breakers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	statuses := make([]*circuit.Status, 0)
	for _, breaker := range h.registry.All() {
		status, err := breaker.Status(ctx)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to read breaker status",
				"service", breaker.Service(), "error", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "breaker status unavailable"))
			return
		}
		statuses = append(statuses, status)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"breakers": statuses})
}

type setStateRequest struct {
	State string `json:"state"`
}

// HandleSetState handles PUT /breakers/{service}/state, the manual override
// used to force a breaker open during provider maintenance or closed after a
// confirmed recovery.
func (h *Handler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	service := chi.URLParam(r, "service")
	breaker, ok := h.registry.Get(service)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown service"))
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	state, ok := circuit.ParseState(req.State)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid state"))
		return
	}

	if err := breaker.SetState(ctx, state); err != nil {
		h.logger.ErrorContext(ctx, "failed to set breaker state",
			"service", service, "state", state, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "state change failed"))
		return
	}
	h.logger.InfoContext(ctx, "breaker state overridden", "service", service, "state", state)

	status, err := breaker.Status(ctx)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "breaker status unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
