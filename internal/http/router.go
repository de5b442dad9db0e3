// Package httpapi wires the middleware chains and handlers into the public
// HTTP surface: webhook ingestion, the tenant-facing API, and the
// token-guarded admin area.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatekeeper/internal/circuit"
	circuithandler "gatekeeper/internal/circuit/handler"
	ddoshandler "gatekeeper/internal/ddos/handler"
	"gatekeeper/internal/gatekeeper"
	ratelimithandler "gatekeeper/internal/ratelimit/handler"
	tenanthandler "gatekeeper/internal/tenant/handler"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/admin"
	"gatekeeper/pkg/platform/middleware/metadata"
	"gatekeeper/pkg/platform/middleware/requesttime"
)

// HealthChecker reports the health of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps collects everything the router needs. All fields are required except
// Logger.
type Deps struct {
	Logger     *slog.Logger
	Pipeline   *gatekeeper.Pipeline
	Messages   MessageSender
	Usage      ratelimithandler.Service
	DDoS       ddoshandler.Service
	Breakers   *circuit.Registry
	Tenants    tenanthandler.Guard
	AdminToken string
	Health     map[string]HealthChecker
}

// NewRouter composes the three middleware chains around their routes:
//
//	webhook:   webhook-rate -> phone guard -> inbound rate   (all fail open)
//	protected: ip guard (open) -> api rate (closed) -> tenant gate (closed)
//	send:      protected chain + outbound message limit (closed)
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := deps.Pipeline
	h := &Handler{messages: deps.Messages, usage: deps.Usage, logger: logger}

	r := chi.NewRouter()
	r.Use(requesttime.Middleware, metadata.ClientMetadata)

	r.Get("/health", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(
			p.WebhookRateLimit(gatekeeper.FailOpen),
			p.PhoneGuard(gatekeeper.FailOpen),
			p.InboundMessageLimit(gatekeeper.FailOpen),
		)
		r.Post("/webhook/whatsapp", h.HandleWebhook)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(gatekeeper.TenantContext)
		r.Use(
			p.IPGuard(gatekeeper.FailOpen),
			p.APIRateLimit(gatekeeper.FailClosed),
			p.TenantGate(gatekeeper.FailClosed),
		)

		r.Get("/usage", h.HandleUsage)

		r.Group(func(r chi.Router) {
			r.Use(p.OutboundMessageLimit(gatekeeper.FailClosed))
			r.Post("/messages", h.HandleSendMessage)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(deps.AdminToken, logger))
		ddoshandler.New(deps.DDoS, logger).Register(r)
		circuithandler.New(deps.Breakers, logger).Register(r)
		tenanthandler.New(deps.Tenants, logger).Register(r)
		ratelimithandler.New(deps.Usage, logger).Register(r)
	})

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				components[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "up"
		}
		body := map[string]any{"status": "ok", "components": components}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		httputil.WriteJSON(w, status, body)
	}
}
