package query

import (
	"context"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/rs/zerolog"
)

// Config controls the polling sweep.
type Config struct {
	Enabled       bool
	Interval      time.Duration
	RecencyWindow time.Duration // only orders younger than this are polled
	BatchSize     int
	ItemDelay     time.Duration // courtesy delay between remote calls
}

// Agent asks the provider for ground truth on ambiguous orders and feeds
// the answers through the Reconciler. It holds no reconciliation logic of
// its own; it is purely a sourcing mechanism.
type Agent struct {
	orders     order.Store
	client     alipay.Client
	reconciler *reconcile.Reconciler
	cfg        Config
	logger     zerolog.Logger
}

// NewAgent creates a query Agent.
func NewAgent(orders order.Store, client alipay.Client, reconciler *reconcile.Reconciler, cfg Config, logger zerolog.Logger) *Agent {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = 24 * time.Hour
	}
	return &Agent{
		orders:     orders,
		client:     client,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger.With().Str("component", "order_query").Logger(),
	}
}

// CheckOrder queries the provider for one order and reconciles the result.
// Paid orders short-circuit without a remote call, as do orders that were
// never sent to the provider.
func (a *Agent) CheckOrder(ctx context.Context, o *order.Order) (reconcile.Outcome, error) {
	if o.IsPaid() {
		return reconcile.Outcome{Kind: reconcile.AlreadySettled}, nil
	}

	ref := o.TradeReference()
	if ref == "" {
		// Nothing to query; the trade was never created remotely.
		return reconcile.Outcome{Kind: reconcile.StillPending}, nil
	}

	obs, err := a.client.QueryTrade(ctx, ref)
	if err != nil {
		a.logger.Error().Err(err).Int64("order_id", o.ID).Str("out_trade_no", ref).Msg("trade query request failed")
		return reconcile.Outcome{Kind: reconcile.QueryFailed, Message: err.Error()}, nil
	}

	return a.reconciler.Apply(ctx, o, obs)
}

// Sweep polls recent unpaid orders, oldest first, bounded by the batch
// size. One order's failure never blocks the rest of the batch.
func (a *Agent) Sweep(ctx context.Context) error {
	orders, err := a.orders.ListAwaitingPayment(ctx, order.SweepFilter{
		Statuses:     []order.Status{order.StatusPending, order.StatusOnHold},
		CreatedAfter: time.Now().Add(-a.cfg.RecencyWindow),
		Limit:        a.cfg.BatchSize,
		OldestFirst:  true,
	})
	if err != nil {
		return err
	}

	for i, o := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome, err := a.CheckOrder(ctx, o)
		if err != nil {
			a.logger.Error().Err(err).Int64("order_id", o.ID).Msg("order status check failed")
		} else {
			a.logger.Debug().Int64("order_id", o.ID).Str("outcome", string(outcome.Kind)).Msg("order status checked")
		}

		if a.cfg.ItemDelay > 0 && i < len(orders)-1 {
			select {
			case <-time.After(a.cfg.ItemDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
