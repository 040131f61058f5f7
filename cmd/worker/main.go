package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/bootstrap"
	infraRedis "github.com/cassiomorais/alipay-bridge/internal/infrastructure/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "alipay-bridge-worker", "alipay_bridge_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	services, err := app.BuildServices()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Query sweep: polls the provider for recent unpaid orders.
	if app.Config.OrderQuery.Enabled {
		g.Go(func() error {
			return runSweep(gCtx, app, "order_query", app.Config.OrderQuery.Interval, services.QueryAgent.Sweep)
		})
	}

	// 2. Timeout sweep: cancels orders that sat unpaid past the deadline.
	if app.Config.OrderTimeout.Enabled {
		g.Go(func() error {
			return runSweep(gCtx, app, "order_timeout", app.Config.OrderTimeout.Interval, services.Timeout.Sweep)
		})
	}

	// 3. Webhook retry sweep: re-processes failed notifications.
	if app.Config.WebhookRetry.Enabled {
		g.Go(func() error {
			return runSweep(gCtx, app, "webhook_retry", app.Config.WebhookRetry.Interval, services.RetryAgent.Sweep)
		})
	}

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	app.Logger.Info().
		Bool("order_query", app.Config.OrderQuery.Enabled).
		Bool("order_timeout", app.Config.OrderTimeout.Enabled).
		Bool("webhook_retry", app.Config.WebhookRetry.Enabled).
		Msg("Worker started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runSweep drives one sweep on a ticker. A distributed lock keyed by the
// sweep name serializes runs across worker instances; losing the acquire
// race skips the tick.
func runSweep(ctx context.Context, app *bootstrap.App, name string, interval time.Duration, sweep func(context.Context) error) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := infraRedis.NewDistributedLock(app.Redis, "sweep:"+name, interval)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Str("sweep", name).Msg("Sweep lock error")
			continue
		}
		if !acquired {
			app.Logger.Debug().Str("sweep", name).Msg("Sweep already running elsewhere, skipping")
			continue
		}

		start := time.Now()
		err = sweep(ctx)
		app.Metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			app.Logger.Error().Err(err).Str("sweep", name).Msg("Sweep failed")
			app.Metrics.SweepRunsTotal.WithLabelValues(name, "error").Inc()
		} else {
			app.Metrics.SweepRunsTotal.WithLabelValues(name, "success").Inc()
		}

		lock.Release(ctx)
	}
}
