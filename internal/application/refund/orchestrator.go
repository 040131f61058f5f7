package refund

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Orchestrator issues refund requests against settled trades. Refund
// failures surface verbatim and are never retried automatically; a failed
// refund needs human judgment.
type Orchestrator struct {
	orders    order.Store
	client    alipay.Client
	converter currency.Converter
	siteID    string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(orders order.Store, client alipay.Client, converter currency.Converter, siteID string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		orders:    orders,
		client:    client,
		converter: converter,
		siteID:    siteID,
		logger:    logger.With().Str("component", "refund").Logger(),
		now:       time.Now,
	}
}

// Execute refunds amount (store currency) on the given order.
func (s *Orchestrator) Execute(ctx context.Context, orderID int64, amount decimal.Decimal, reason string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if o.TransactionClosed() {
		return domainErrors.NewDomainError("alipay_transaction_closed",
			"refund failed", domainErrors.ErrTransactionClosed)
	}
	if o.TransactionID == "" {
		return domainErrors.NewDomainError("transaction_id",
			"refund failed", domainErrors.ErrTransactionMissing)
	}

	total := s.converter.Convert(o.Total, o.Currency)
	converted := s.converter.Convert(amount, o.Currency)
	if !converted.IsPositive() || converted.GreaterThan(total) {
		return domainErrors.ErrInvalidRefundAmount
	}

	// Prefer the reference stored at trade creation; the provider indexes
	// the trade by it. Reconstruction is a fallback for legacy orders.
	ref := o.TradeReference()
	if ref == "" {
		ref = trade.NewOrderReference(o.ID, s.now())
	}
	requestNo := trade.NewRefundRequestNo(s.siteID, o.ID, s.now())

	obs, err := s.client.Refund(ctx, alipay.RefundRequest{
		OutTradeNo:   ref,
		TradeNo:      o.TransactionID,
		RefundAmount: converted.StringFixed(2),
		OutRequestNo: requestNo,
		Reason:       reason,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("order_id", o.ID).Msg("refund request failed")
		return fmt.Errorf("provider refund: %w", err)
	}
	if !obs.Succeeded() {
		s.logger.Error().Int64("order_id", o.ID).Str("error", obs.ErrorMessage()).Msg("refund rejected by provider")
		return domainErrors.NewDomainError("refund_rejected", obs.ErrorMessage(), domainErrors.ErrProviderRejected)
	}

	note := fmt.Sprintf("Refunded %s - Refund ID: #%s", converted.StringFixed(2), strings.TrimLeft(requestNo, "0"))
	if err := s.orders.AddNote(ctx, o.ID, note); err != nil {
		s.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("failed to append refund note")
	}
	s.logger.Info().Int64("order_id", o.ID).Str("refund_request_no", requestNo).Str("amount", converted.StringFixed(2)).Msg("refund completed")
	return nil
}
