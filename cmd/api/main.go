package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixhub/workshop/internal/bootstrap"
	"github.com/felixhub/workshop/internal/controller"
	"github.com/felixhub/workshop/internal/service"
	"github.com/felixhub/workshop/internal/webhook"
)

const bridgeDrainTimeout = 15 * time.Second

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "felixhub-api", "felixhub")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	// --- Webhook bridge ---
	botHandler := service.NewBotHandler(app.Telegram, app.OrderRepo, app.Logger)
	webhookCfg := app.Config.Webhook
	bridge := webhook.NewBridge(
		botHandler.Handle,
		webhook.NewProcessedSet(webhookCfg.ProcessedTTL, webhookCfg.ProcessedMaxEntries),
		webhook.Options{
			QueueSize:      webhookCfg.QueueSize,
			Concurrency:    webhookCfg.Concurrency,
			ReadyTimeout:   webhookCfg.ReadyTimeout,
			DrainTimeout:   webhookCfg.DrainTimeout,
			HandlerTimeout: webhookCfg.HandlerTimeout,
		},
		app.Metrics,
		app.Logger,
	)
	if err := bridge.Start(); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to start webhook bridge")
		app.Close(ctx)
		os.Exit(1)
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Database:          app.Pool,
		RedisClient:       app.Redis,
		Bridge:            bridge,
		OrderService:      app.Orders,
		MonitoringService: app.Monitoring,
		Metrics:           app.Metrics,
		Gatherer:          app.Registry,
		Server:            app.Config.Server,
		Auth:              app.Config.Auth,
		WebhookSecret:     app.Config.Telegram.WebhookSecret,
		Logger:            app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.Logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-serverErr:
		app.Logger.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// The server no longer feeds the bridge; let queued updates finish.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), bridgeDrainTimeout)
	defer drainCancel()
	if err := bridge.Close(drainCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Webhook bridge did not drain cleanly")
	}

	app.Close(context.Background())
	app.Logger.Info().Msg("Server exited")
}
