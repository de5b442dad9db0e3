package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"gatekeeper/internal/messaging"
	ratelimithandler "gatekeeper/internal/ratelimit/handler"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/requestcontext"
)

// MessageSender delivers outbound messages through the circuit breaker.
type MessageSender interface {
	SendMessage(ctx context.Context, tenantID id.TenantID, msg messaging.Message) (string, error)
}

// Handler serves the public endpoints. Admission decisions happen in the
// middleware chains; by the time a handler runs the request is admitted.
type Handler struct {
	messages MessageSender
	usage    ratelimithandler.Service
	logger   *slog.Logger
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// HandleSendMessage handles POST /v1/messages.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || req.Body == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "to and body are required"))
		return
	}

	messageID, err := h.messages.SendMessage(ctx, tenantID, messaging.Message{To: req.To, Body: req.Body})
	if err != nil {
		h.logger.ErrorContext(ctx, "message send failed", "tenant_id", tenantID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"message_id": messageID})
}

// HandleWebhook handles POST /webhook/whatsapp. The admission chain has
// already throttled it; ingestion itself is an acknowledgment, the actual
// conversation logic lives downstream.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		From string `json:"from"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid webhook payload"))
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleUsage handles GET /v1/usage for the authenticated tenant.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)

	stats, err := h.usage.GetUsageStats(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "usage stats lookup failed", "tenant_id", tenantID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "usage stats unavailable"))
		return
	}
	approaching, err := h.usage.IsApproachingLimit(ctx, tenantID, 0)
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
