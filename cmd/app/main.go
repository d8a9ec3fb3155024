package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"app/internal/api/v1/router"
	"app/internal/config"
	"app/internal/logger"
	"app/internal/service"

	_ "app/docs"

	"github.com/joho/godotenv"
)

// @title Animation Labs Billing API
// @version 1.0
// @description Credit ledger, billing reconciliation and video rendering API
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	logger := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx := context.Background()

	// 2. In production, secrets missing from the environment are
	// resolved through Secret Manager.
	if cfg.Environment == "production" && cfg.GCPProjectID != "" {
		sm, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to init Secret Manager: %v", err)
		}
		resolve := func(target *string, name string) {
			if *target != "" {
				return
			}
			value, err := sm.GetSecret(ctx, name)
			if err != nil {
				logger.Fatal().Msgf("Failed to resolve secret %s: %v", name, err)
			}
			*target = value
		}
		resolve(&cfg.StripeSecretKey, "stripe-secret-key")
		resolve(&cfg.StripeWebhookSecret, "stripe-webhook-secret")
		resolve(&cfg.RenderCallbackSecret, "render-callback-secret")
		resolve(&cfg.JWTSecret, "jwt-secret")
		_ = sm.Close()
	}

	// 3. Build router (and get the connection pool)
	r, pool, err := router.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build router: %v", err)
	}
	defer pool.Close()

	// 4. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Start server in a goroutine
	go func() {
		logger.Info().Msgf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s\n", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Msgf("Server forced to shutdown: %v", err)
	}
	logger.Info().Msg("Server shut down gracefully")
}
