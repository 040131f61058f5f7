package reconcile

import (
	"context"
	"fmt"

	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/rs/zerolog"
)

// Kind classifies the result of applying an observation to an order.
type Kind string

const (
	// AlreadySettled means the order was paid before this observation.
	AlreadySettled Kind = "already_settled"
	// Settled means this observation settled the order.
	Settled Kind = "settled"
	// Closed means the provider closed the trade and the order was cancelled.
	Closed Kind = "closed"
	// StillPending means no state change; the buyer has not paid yet.
	StillPending Kind = "still_pending"
	// QueryFailed means the provider answered with an unexpected error and
	// the order was left untouched.
	QueryFailed Kind = "query_failed"
)

// Outcome is the result of one reconciliation.
type Outcome struct {
	Kind    Kind
	Message string
}

// Failed reports whether the observation could not be applied.
func (o Outcome) Failed() bool {
	return o.Kind == QueryFailed
}

// Paid reports whether the order is settled after this reconciliation.
func (o Outcome) Paid() bool {
	return o.Kind == Settled || o.Kind == AlreadySettled
}

// Reconciler applies remote trade observations to local orders. Every
// channel (webhook, query sweep, timeout sweep) funnels through Apply, so
// the mapping below is the only place order payment state changes in
// response to provider data.
type Reconciler struct {
	orders order.Store
	logger zerolog.Logger
}

// New creates a Reconciler.
func New(orders order.Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		orders: orders,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// Apply reconciles the order against the observation. Applying the same
// observation twice yields the same terminal state: settled orders
// short-circuit before any mutation.
func (r *Reconciler) Apply(ctx context.Context, o *order.Order, obs trade.Observation) (Outcome, error) {
	if o.IsPaid() {
		r.note(ctx, o.ID, "Provider reported trade state but the order was already paid. Double check that the payment was recorded properly.")
		return Outcome{Kind: AlreadySettled}, nil
	}

	// Error observations come from the query channel; webhook payloads
	// carry no response code.
	if obs.Code != "" && !obs.Succeeded() {
		if obs.TradeNotFound() {
			// Normal for a trade the buyer never opened remotely.
			return Outcome{Kind: StillPending}, nil
		}
		msg := obs.ErrorMessage()
		r.logger.Error().Int64("order_id", o.ID).Str("out_trade_no", obs.OutTradeNo).Str("error", msg).Msg("trade query failed")
		return Outcome{Kind: QueryFailed, Message: msg}, nil
	}

	switch obs.TradeStatus {
	case trade.StatusSuccess, trade.StatusFinished:
		if err := o.MarkPaid(obs.TradeNo); err != nil {
			return Outcome{}, err
		}
		if obs.TradeStatus == trade.StatusFinished {
			// No further refund is possible once the provider finishes
			// the trade.
			o.MarkTransactionClosed()
		}
		if err := r.orders.Update(ctx, o); err != nil {
			return Outcome{}, fmt.Errorf("settle order %d: %w", o.ID, err)
		}
		r.note(ctx, o.ID, fmt.Sprintf("Payment confirmed. Trade status: %s, transaction: %s", obs.TradeStatus, obs.TradeNo))
		r.logger.Info().Int64("order_id", o.ID).Str("trade_no", obs.TradeNo).Str("trade_status", string(obs.TradeStatus)).Msg("order settled")
		return Outcome{Kind: Settled}, nil

	case trade.StatusClosed:
		if o.NeedsPayment() {
			if err := o.Cancel(); err != nil {
				return Outcome{}, err
			}
		}
		o.MarkTransactionClosed()
		if err := r.orders.Update(ctx, o); err != nil {
			return Outcome{}, fmt.Errorf("close order %d: %w", o.ID, err)
		}
		r.note(ctx, o.ID, "Provider closed the trade; the order is no longer valid for payment.")
		r.logger.Info().Int64("order_id", o.ID).Msg("trade closed, order cancelled")
		return Outcome{Kind: Closed}, nil

	case trade.StatusWaitBuyerPay:
		r.note(ctx, o.ID, "Provider is still waiting for the buyer to pay.")
		return Outcome{Kind: StillPending}, nil

	default:
		msg := fmt.Sprintf("unexpected trade status %q", obs.TradeStatus)
		r.logger.Error().Int64("order_id", o.ID).Str("trade_status", string(obs.TradeStatus)).Msg("unexpected trade status")
		return Outcome{Kind: QueryFailed, Message: msg}, nil
	}
}

// note appends an audit note; a note failure never blocks reconciliation.
func (r *Reconciler) note(ctx context.Context, orderID int64, text string) {
	if err := r.orders.AddNote(ctx, orderID, text); err != nil {
		r.logger.Warn().Err(err).Int64("order_id", orderID).Msg("failed to append order note")
	}
}
