package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"softphone/internal/auth"
	"softphone/internal/calls"
	"softphone/internal/config"
	"softphone/internal/contacts"
	"softphone/internal/httpapi"
	"softphone/internal/relay"
	"softphone/internal/telephony"
	"softphone/internal/users"
	"softphone/pkg/logger"
	"softphone/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Relay hub plus the Redis bridge so every instance fans out.
	hub := relay.NewHub(log)
	broker := relay.NewBroker(rdb, hub, log)
	go hub.Run(rootCtx)
	go broker.Run(rootCtx)

	provider := telephony.NewTelnyxProvider(cfg.Telnyx, cfg.WebhookURL())
	if !provider.Configured() {
		log.Warn("TELNYX_API_KEY not set; call actions will fail until configured")
	}

	var verifier *telephony.WebhookVerifier
	if cfg.Telnyx.WebhookPublicKey != "" {
		verifier, err = telephony.NewWebhookVerifier(cfg.Telnyx.WebhookPublicKey)
		if err != nil {
			log.Error("webhook verifier init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("TELNYX_PUBLIC_KEY not set; webhook signatures will not be verified")
	}

	callStore := calls.NewPostgresStore(db)
	callService := calls.NewService(callStore, provider, hub).WithLogger(log)
	if cfg.Calls.MaxConcurrentPerUser > 0 {
		callService = callService.WithCallCap(rdb, cfg.Calls.MaxConcurrentPerUser)
	}

	h := httpapi.Handlers{
		Auth:     authManager,
		Users:    users.NewPostgresRepo(db),
		Calls:    callService,
		Contacts: contacts.NewPostgresRepo(db),
	}
	webhook := httpapi.TelnyxWebhookHandler{Calls: callService, Verifier: verifier}
	ws := &relay.WSHandler{Hub: hub, Upgrader: relay.NewUpgrader()}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, db, h, webhook, ws, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
