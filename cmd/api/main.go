package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/alipay-bridge/internal/bootstrap"
	"github.com/cassiomorais/alipay-bridge/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "alipay-bridge-api", "alipay_bridge")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	services, err := app.BuildServices()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}

	router := controller.NewRouter(controller.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		Orders:      services.Orders,
		Logs:        services.Logs,
		Webhooks:    services.Webhooks,
		QueryAgent:  services.QueryAgent,
		RetryAgent:  services.RetryAgent,
		Refunds:     services.Refunds,
		Checkout:    services.Checkout,
		Metrics:     app.Metrics,
		CORSConfig:  app.Config.Server.CORS,
		AuthConfig:  app.Config.Auth,
		ReturnURL:   app.Config.Gateway.ReturnURL,
		Logger:      app.Logger,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
