// Package main is the entrypoint for the Dashactyl API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranshivaraju/dashactyl/internal/account"
	"github.com/kiranshivaraju/dashactyl/internal/afk"
	"github.com/kiranshivaraju/dashactyl/internal/api"
	"github.com/kiranshivaraju/dashactyl/internal/api/handler"
	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/apikey"
	"github.com/kiranshivaraju/dashactyl/internal/billing"
	"github.com/kiranshivaraju/dashactyl/internal/cache"
	"github.com/kiranshivaraju/dashactyl/internal/config"
	"github.com/kiranshivaraju/dashactyl/internal/events"
	"github.com/kiranshivaraju/dashactyl/internal/reputation"
	"github.com/kiranshivaraju/dashactyl/internal/store"
)

const (
	shutdownTimeout        = 30 * time.Second
	sessionCleanupInterval = time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "block_proxies", cfg.Auth.BlockProxies,
		"allow_alts", cfg.Auth.AllowAlts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations before accepting requests
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Events: local hub mirrored over the userUpdate channel
	pgStore := store.NewPostgresStore(pool)
	hub := events.NewHub()
	relay := events.NewRedisRelay(hub, redisCache, redisCache, slog.Default())
	go func() {
		if err := relay.Run(ctx); err != nil {
			slog.Error("event relay stopped", "error", err)
		}
	}()

	// 6. Services
	accounts := account.NewService(pgStore,
		account.WithBcryptCost(cfg.Auth.BcryptCost),
		account.WithPublisher(hub),
	)
	bill := billing.NewService(pgStore, billing.WithPublisher(hub))
	keys := apikey.NewService(pgStore, cfg.Auth.BcryptCost, slog.Default())
	earner := afk.NewEarner(accounts, redisCache, slog.Default())
	classifier := reputation.NewCached(
		reputation.NewDBIP(cfg.Reputation.BaseURL, cfg.Reputation.Timeout),
		redisCache, cfg.Reputation.CacheTTL, slog.Default(),
	)

	go cleanupSessions(ctx, pgStore, sessionCleanupInterval)

	// 7. Build router with dependencies
	sessionCfg := handler.SessionConfig{
		TTL:    cfg.Auth.SessionTTL,
		Secure: cfg.Server.Env == "production",
	}
	regOpts := handler.RegisterOptions{
		Classifier:   classifier,
		BlockProxies: cfg.Auth.BlockProxies,
		AllowAlts:    cfg.Auth.AllowAlts,
		Session:      sessionCfg,
	}

	deps := api.Dependencies{
		Auth:       mw.NewAuth(keys, pgStore, cfg.Auth.BootstrapKey),
		RateLimit:  mw.NewRateLimit(redisCache, cfg.Auth.RateLimit),
		TrustProxy: cfg.Server.TrustProxy,
		Metrics:    promhttp.Handler(),

		HealthHandler: healthHandler(pgStore, redisCache),

		RegisterHandler: handler.NewRegisterHandler(accounts, pgStore, regOpts),
		LoginHandler:    handler.NewLoginHandler(accounts, pgStore, sessionCfg),
		LogoutHandler:   handler.NewLogoutHandler(pgStore),
		MeHandler:       handler.NewMeHandler(accounts),
		MyRenewals:      handler.NewMyRenewalsHandler(bill),
		RenewHandler:    handler.NewRenewHandler(bill),
		AFKSettings:     handler.NewAFKSettingsHandler(pgStore),
		AFKStream:       handler.NewAFKStreamHandler(pgStore, earner),
		EventsHandler:   handler.NewEventsHandler(hub),

		GetSettings:          handler.NewGetSettingsHandler(pgStore),
		UpdateSettings:       handler.NewUpdateSettingsHandler(pgStore),
		ListPackages:         handler.NewListPackagesHandler(pgStore),
		CreatePackage:        handler.NewCreatePackageHandler(pgStore),
		GetDefaultPackage:    handler.NewGetDefaultPackageHandler(pgStore),
		GetPackage:           handler.NewGetPackageHandler(pgStore),
		ListEggs:             handler.NewListEggsHandler(pgStore),
		CreateEgg:            handler.NewCreateEggHandler(pgStore),
		GetEgg:               handler.NewGetEggHandler(pgStore),
		ListLocations:        handler.NewListLocationsHandler(pgStore),
		CreateLocation:       handler.NewCreateLocationHandler(pgStore),
		GetLocation:          handler.NewGetLocationHandler(pgStore),
		UpdateLocationStatus: handler.NewUpdateLocationStatusHandler(pgStore),
		GetUser:              handler.NewGetUserHandler(accounts),
		UpdatePassword:       handler.NewUpdatePasswordHandler(accounts),
		AddUsed:              handler.NewAddUsedHandler(accounts),
		SetUsed:              handler.NewSetUsedHandler(accounts),
		UpdateCoins:          handler.NewUpdateCoinsHandler(accounts),
		UpdateExtra:          handler.NewUpdateExtraHandler(accounts),
		SetExternalID:        handler.NewSetExternalIDHandler(accounts),
		UserRenewals:         handler.NewUserRenewalsHandler(bill),
		ListRenewals:         handler.NewListRenewalsHandler(bill),
		CreateRenewal:        handler.NewCreateRenewalHandler(bill),
		GetRenewal:           handler.NewGetRenewalHandler(bill),
		UpdateRenewal:        handler.NewUpdateRenewalHandler(bill),
		DeleteRenewal:        handler.NewDeleteRenewalHandler(bill),
		ListKeysHandler:      handler.NewListKeysHandler(keys),
		CreateKeyHandler:     handler.NewCreateKeyHandler(keys),
		DeleteKeyHandler:     handler.NewDeleteKeyHandler(keys),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server. No WriteTimeout: the AFK and event streams stay open.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is anything the health check can probe.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

type sessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// cleanupSessions removes expired sessions every interval until ctx ends.
func cleanupSessions(ctx context.Context, s sessionSweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpiredSessions(ctx)
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
		}
	}
}
