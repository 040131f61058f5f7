package bootstrap

import (
	"fmt"

	"github.com/cassiomorais/alipay-bridge/internal/application/checkout"
	"github.com/cassiomorais/alipay-bridge/internal/application/notification"
	"github.com/cassiomorais/alipay-bridge/internal/application/query"
	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	"github.com/cassiomorais/alipay-bridge/internal/application/refund"
	"github.com/cassiomorais/alipay-bridge/internal/application/timeout"
	"github.com/cassiomorais/alipay-bridge/internal/application/webhookretry"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	infraRedis "github.com/cassiomorais/alipay-bridge/internal/infrastructure/redis"
	"github.com/cassiomorais/alipay-bridge/internal/repository/postgres"
)

// Services is the wired object graph shared by the api and worker binaries.
type Services struct {
	Orders     order.Store
	Logs       webhooklog.Repository
	Client     alipay.Client
	Converter  currency.Converter
	Reconciler *reconcile.Reconciler
	QueryAgent *query.Agent
	Timeout    *timeout.Agent
	RetryAgent *webhookretry.Agent
	Webhooks   *notification.Handler
	Refunds    *refund.Orchestrator
	Checkout   *checkout.Service
}

// BuildServices wires repositories, the provider client and the application
// services against the bootstrapped infrastructure.
func (a *App) BuildServices() (*Services, error) {
	cfg := a.Config

	orders := postgres.NewOrderRepository(a.Pool)
	logs := postgres.NewWebhookLogRepository(a.Pool)
	txManager := postgres.NewTxManager(a.Pool)

	signer, err := alipay.NewRSA2Signer(cfg.Gateway.PrivateKeyPath, cfg.Gateway.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("init gateway signer: %w", err)
	}
	client := alipay.NewGatewayClient(alipay.GatewayConfig{
		AppID:      cfg.Gateway.AppID,
		GatewayURL: cfg.Gateway.EffectiveURL(),
		NotifyURL:  cfg.Gateway.NotifyURL,
		Charset:    cfg.Gateway.Charset,
		SignType:   cfg.Gateway.SignType,
		Timeout:    cfg.Gateway.RequestTimeout,
	}, signer, a.Logger)

	converter := currency.New(cfg.Currency.ExchangeRate, cfg.Currency.Supported)
	reconciler := reconcile.New(orders, a.Logger)
	resolver := trade.NewResolver(orders)
	streams := infraRedis.NewStreamPublisher(a.Redis)

	queryAgent := query.NewAgent(orders, client, reconciler, query.Config{
		Enabled:       cfg.OrderQuery.Enabled,
		Interval:      cfg.OrderQuery.Interval,
		RecencyWindow: cfg.OrderQuery.RecencyWindow,
		BatchSize:     cfg.OrderQuery.BatchSize,
		ItemDelay:     cfg.OrderQuery.ItemDelay,
	}, a.Logger)

	timeoutAgent := timeout.NewAgent(orders, queryAgent, streams, timeout.Config{
		Enabled:   cfg.OrderTimeout.Enabled,
		Interval:  cfg.OrderTimeout.Interval,
		Timeout:   cfg.OrderTimeout.Timeout,
		BatchSize: cfg.OrderTimeout.BatchSize,
	}, a.Logger)

	retryAgent := webhookretry.NewAgent(logs, orders, queryAgent, webhookretry.Config{
		Enabled:    cfg.WebhookRetry.Enabled,
		Interval:   cfg.WebhookRetry.Interval,
		MaxRetries: cfg.WebhookRetry.MaxRetries,
		CoolDown:   cfg.WebhookRetry.CoolDown,
		BatchSize:  cfg.WebhookRetry.BatchSize,
		ItemDelay:  cfg.WebhookRetry.ItemDelay,
	}, a.Logger)

	recorder := webhookretry.NewLog(logs, txManager, a.Logger)
	webhooks := notification.NewHandler(notification.Config{
		AppID:  cfg.Gateway.AppID,
		SiteID: cfg.SiteID,
	}, orders, resolver, reconciler, client, converter, recorder, streams, a.Logger)

	refunds := refund.NewOrchestrator(orders, client, converter, cfg.SiteID, a.Logger)

	checkoutSvc := checkout.NewService(checkout.Config{
		ReturnURL: cfg.Gateway.ReturnURL,
	}, orders, client, converter, reconciler, timeoutAgent, a.Logger)

	return &Services{
		Orders:     orders,
		Logs:       logs,
		Client:     client,
		Converter:  converter,
		Reconciler: reconciler,
		QueryAgent: queryAgent,
		Timeout:    timeoutAgent,
		RetryAgent: retryAgent,
		Webhooks:   webhooks,
		Refunds:    refunds,
		Checkout:   checkoutSvc,
	}, nil
}
