package webhookretry

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/query"
	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config controls the retry sweep.
type Config struct {
	Enabled    bool
	Interval   time.Duration
	MaxRetries int
	CoolDown   time.Duration // minimum age of the last attempt before retrying
	BatchSize  int
	ItemDelay  time.Duration
}

// Agent re-processes failed webhook log entries by asking the provider for
// ground truth. Entries past the retry budget stay failed until an
// operator retries them by hand; a manual retry spends the same budget.
type Agent struct {
	repo   webhooklog.Repository
	orders order.Store
	query  *query.Agent
	cfg    Config
	logger zerolog.Logger
}

// NewAgent creates a retry Agent.
func NewAgent(repo webhooklog.Repository, orders order.Store, queryAgent *query.Agent, cfg Config, logger zerolog.Logger) *Agent {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 10 * time.Minute
	}
	return &Agent{
		repo:   repo,
		orders: orders,
		query:  queryAgent,
		cfg:    cfg,
		logger: logger.With().Str("component", "webhook_retry").Logger(),
	}
}

// Sweep retries failed entries within budget whose last attempt is older
// than the cool-down, oldest first, bounded by the batch size.
func (a *Agent) Sweep(ctx context.Context) error {
	entries, err := a.repo.ListRetryable(ctx, a.cfg.MaxRetries, time.Now().Add(-a.cfg.CoolDown), a.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.process(ctx, e); err != nil {
			a.logger.Error().Err(err).Str("out_trade_no", e.OutTradeNo).Msg("webhook retry failed")
		}

		if a.cfg.ItemDelay > 0 && i < len(entries)-1 {
			select {
			case <-time.After(a.cfg.ItemDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// RetryOne retries a single entry on operator demand, regardless of the
// automatic budget. It reports whether payment was confirmed.
func (a *Agent) RetryOne(ctx context.Context, id uuid.UUID) (bool, error) {
	e, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if err := a.process(ctx, e); err != nil {
		return false, err
	}
	fresh, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return fresh.Status == webhooklog.StatusSuccess, nil
}

func (a *Agent) process(ctx context.Context, e *webhooklog.Entry) error {
	o, err := a.resolveOrder(ctx, e)
	if err != nil {
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			return a.repo.Mark(ctx, e.OutTradeNo, webhooklog.StatusFailed, "order not found")
		}
		return err
	}

	// Already paid means the notification effectively succeeded; no remote
	// call needed.
	if o.IsPaid() {
		return a.repo.Mark(ctx, e.OutTradeNo, webhooklog.StatusSuccess, "")
	}

	outcome, err := a.query.CheckOrder(ctx, o)
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case reconcile.Settled, reconcile.AlreadySettled, reconcile.Closed:
		a.logger.Info().Int64("order_id", o.ID).Str("outcome", string(outcome.Kind)).Msg("webhook retry resolved")
		return a.repo.Mark(ctx, e.OutTradeNo, webhooklog.StatusSuccess, "")
	case reconcile.QueryFailed:
		return a.repo.Mark(ctx, e.OutTradeNo, webhooklog.StatusFailed, outcome.Message)
	default:
		return a.repo.Mark(ctx, e.OutTradeNo, webhooklog.StatusFailed, "unable to confirm payment status")
	}
}

func (a *Agent) resolveOrder(ctx context.Context, e *webhooklog.Entry) (*order.Order, error) {
	if e.OrderID > 0 {
		return a.orders.Get(ctx, e.OrderID)
	}
	return a.orders.FindByTradeReference(ctx, e.OutTradeNo)
}
