package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixhub/workshop/internal/bootstrap"
	"github.com/felixhub/workshop/internal/service"
	"github.com/felixhub/workshop/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx, "felixhub-worker", "felixhub_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	workerCfg := app.Config.Worker
	dispatcher := service.NewNotificationDispatcher(app.OrderRepo, app.Notifications, app.Logger)
	outboxProcessor := worker.NewOutboxProcessor(
		app.OutboxRepo,
		dispatcher,
		workerCfg.OutboxBatchSize,
		workerCfg.OutboxPollInterval,
		workerCfg.OutboxClaimLease,
		app.Metrics,
		app.Logger,
	)
	sweeper := worker.NewAlertSweeper(
		app.Redis,
		app.Monitoring,
		app.Notifications,
		workerCfg.AlertLockTTL,
		app.Metrics,
		app.Logger,
	)

	app.Logger.Info().
		Str("consumer", app.Config.InstanceID).
		Str("alert_schedule", workerCfg.AlertSchedule).
		Msg("Worker started")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return outboxProcessor.Run(gCtx)
	})
	g.Go(func() error {
		return sweeper.Run(gCtx, workerCfg.AlertSchedule)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
