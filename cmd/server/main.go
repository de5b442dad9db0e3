package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"gatekeeper/internal/circuit"
	circuitmetrics "gatekeeper/internal/circuit/metrics"
	"gatekeeper/internal/counter"
	"gatekeeper/internal/ddos"
	ddosmetrics "gatekeeper/internal/ddos/metrics"
	"gatekeeper/internal/gatekeeper"
	httpapi "gatekeeper/internal/http"
	"gatekeeper/internal/messaging"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/httpserver"
	"gatekeeper/internal/platform/logger"
	platformredis "gatekeeper/internal/platform/redis"
	ratelimitmetrics "gatekeeper/internal/ratelimit/metrics"
	ratelimitservice "gatekeeper/internal/ratelimit/service"
	"gatekeeper/internal/ratelimit/store/usage"
	"gatekeeper/internal/tenant/guard"
	tenantmetrics "gatekeeper/internal/tenant/metrics"
	tenantstore "gatekeeper/internal/tenant/store"
)

// main wires the stores, services, and middleware chains, then runs the
// server until a shutdown signal arrives.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	defer db.Close()

	counters := counter.NewRedis(redisClient.Client)

	usageStore := usage.NewPostgres(db)
	limiter, err := ratelimitservice.New(counters, usageStore, cfg.RateLimit,
		ratelimitservice.WithUsageStore(usageStore),
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(ratelimitmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	protector, err := ddos.New(counters, cfg.DDoS,
		ddos.WithLogger(log),
		ddos.WithMetrics(ddosmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build ddos protection", "error", err)
		os.Exit(1)
	}

	tenants := tenantstore.NewPostgres(db)
	tenantGuard, err := guard.New(tenants, counters, cfg.Tenant,
		guard.WithLogger(log),
		guard.WithMetrics(tenantmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build tenant guard", "error", err)
		os.Exit(1)
	}

	breakers, err := circuit.NewRegistry(counters, cfg.Breakers, log, circuitmetrics.New())
	if err != nil {
		log.Error("failed to build breaker registry", "error", err)
		os.Exit(1)
	}
	whatsappBreaker, ok := breakers.Get("whatsapp")
	if !ok {
		log.Error("whatsapp breaker profile missing")
		os.Exit(1)
	}

	messages := messaging.New(messaging.NewHTTPSender(cfg.WhatsApp), whatsappBreaker, limiter, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:     log,
		Pipeline:   gatekeeper.New(limiter, protector, tenantGuard, log),
		Messages:   messages,
		Usage:      limiter,
		DDoS:       protector,
		Breakers:   breakers,
		Tenants:    tenantGuard,
		AdminToken: cfg.AdminToken,
		Health: map[string]httpapi.HealthChecker{
			"redis":    redisClient,
			"postgres": pingChecker{db},
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting gatekeeper", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("gatekeeper stopped")
}

// pingChecker adapts *sql.DB to the router's health interface.
type pingChecker struct {
	db *sql.DB
}

func (p pingChecker) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
