package timeout

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/query"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/rs/zerolog"
)

// Config controls the timeout sweep.
type Config struct {
	Enabled   bool
	Interval  time.Duration
	Timeout   time.Duration // how long an order may sit unpaid
	BatchSize int
}

// EventPublisher notifies external listeners about timeout cancellations.
type EventPublisher interface {
	OrderCancelled(ctx context.Context, orderID int64, reason string) error
}

// Agent cancels orders that sat unpaid past their deadline. Orders that
// were sent to the provider are always queried first: the provider gets
// one last chance to reveal a successful payment before we cancel.
type Agent struct {
	orders order.Store
	query  *query.Agent
	events EventPublisher
	cfg    Config
	logger zerolog.Logger
}

// NewAgent creates a timeout Agent.
func NewAgent(orders order.Store, queryAgent *query.Agent, events EventPublisher, cfg Config, logger zerolog.Logger) *Agent {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Agent{
		orders: orders,
		query:  queryAgent,
		events: events,
		cfg:    cfg,
		logger: logger.With().Str("component", "order_timeout").Logger(),
	}
}

// StampDeadline records the payment deadline on a freshly submitted order.
// The caller persists the order.
func (a *Agent) StampDeadline(o *order.Order) {
	if !a.cfg.Enabled {
		return
	}
	minutes := int(a.cfg.Timeout / time.Minute)
	o.SetTimeoutDeadline(time.Now().Add(a.cfg.Timeout), minutes)
}

// Sweep cancels unpaid orders past the timeout, oldest first, bounded.
func (a *Agent) Sweep(ctx context.Context) error {
	orders, err := a.orders.ListAwaitingPayment(ctx, order.SweepFilter{
		Statuses:      []order.Status{order.StatusPending, order.StatusOnHold},
		CreatedBefore: time.Now().Add(-a.cfg.Timeout),
		Limit:         a.cfg.BatchSize,
		OldestFirst:   true,
	})
	if err != nil {
		return err
	}

	for _, o := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := a.cancelIfExpired(ctx, o); err != nil {
			a.logger.Error().Err(err).Int64("order_id", o.ID).Msg("timeout handling failed")
		}
	}
	return nil
}

// cancelIfExpired applies the per-order decision and reports whether the
// order was cancelled.
func (a *Agent) cancelIfExpired(ctx context.Context, o *order.Order) (bool, error) {
	if o.IsPaid() {
		return false, nil
	}

	// Races with the deadline stamping step: the order may predate the
	// sweep cutoff while its own deadline is still in the future.
	if deadline := o.TimeoutDeadline(); !deadline.IsZero() && time.Now().Before(deadline) {
		return false, nil
	}

	if o.TradeReference() == "" {
		// Never sent to the provider; safe to cancel without a query.
		return true, a.cancel(ctx, o, "payment timeout (trade never created)")
	}

	// The trade exists remotely: get fresh ground truth and let the
	// Reconciler settle it before anything destructive happens.
	if _, err := a.query.CheckOrder(ctx, o); err != nil {
		return false, err
	}
	fresh, err := a.orders.Get(ctx, o.ID)
	if err != nil {
		return false, err
	}
	if fresh.IsPaid() {
		a.logger.Info().Int64("order_id", o.ID).Msg("order paid after final query, not cancelling")
		return false, nil
	}
	if !fresh.NeedsPayment() {
		// The query already cancelled it (trade closed remotely).
		return false, nil
	}

	return true, a.cancel(ctx, fresh, fmt.Sprintf("payment timeout (%d minutes)", int(a.cfg.Timeout/time.Minute)))
}

func (a *Agent) cancel(ctx context.Context, o *order.Order, reason string) error {
	if err := o.Cancel(); err != nil {
		return err
	}
	if err := a.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("cancel order %d: %w", o.ID, err)
	}
	if err := a.orders.AddNote(ctx, o.ID, "Order cancelled: "+reason); err != nil {
		a.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("failed to append cancellation note")
	}
	if a.events != nil {
		if err := a.events.OrderCancelled(ctx, o.ID, reason); err != nil {
			a.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("failed to publish cancellation event")
		}
	}
	a.logger.Info().Int64("order_id", o.ID).Str("reason", reason).Msg("order cancelled by timeout sweep")
	return nil
}
