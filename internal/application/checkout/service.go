package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	"github.com/cassiomorais/alipay-bridge/internal/application/timeout"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds checkout-time settings.
type Config struct {
	ReturnURL   string
	ProductCode string // provider product code for page payments
}

// Service starts payment attempts: it issues the merchant trade reference,
// stamps the timeout deadline and hands the buyer off to the provider.
type Service struct {
	cfg        Config
	orders     order.Store
	client     alipay.Client
	converter  currency.Converter
	reconciler *reconcile.Reconciler
	timeouts   *timeout.Agent
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates a checkout Service.
func NewService(
	cfg Config,
	orders order.Store,
	client alipay.Client,
	converter currency.Converter,
	reconciler *reconcile.Reconciler,
	timeouts *timeout.Agent,
	logger zerolog.Logger,
) *Service {
	if cfg.ProductCode == "" {
		cfg.ProductCode = "FAST_INSTANT_TRADE_PAY"
	}
	return &Service{
		cfg:        cfg,
		orders:     orders,
		client:     client,
		converter:  converter,
		reconciler: reconciler,
		timeouts:   timeouts,
		logger:     logger.With().Str("component", "checkout").Logger(),
		now:        time.Now,
	}
}

// InitiatePayment creates a payment attempt for the order and returns the
// provider redirect payload. Each attempt gets a fresh reference; the
// previous one simply goes stale on the provider side.
func (s *Service) InitiatePayment(ctx context.Context, orderID int64) (*alipay.PayForm, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsPaid() {
		return nil, domainErrors.ErrOrderAlreadyPaid
	}
	if s.converter.RequiresRate(o.Currency) {
		return nil, domainErrors.ErrUnsupportedCurrency
	}

	ref := trade.NewOrderReference(o.ID, s.now())
	o.SetTradeReference(ref)
	s.timeouts.StampDeadline(o)
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("store trade reference: %w", err)
	}

	form, err := s.client.CreateTrade(ctx, alipay.TradeRequest{
		OutTradeNo:  ref,
		TotalAmount: s.converter.WireAmount(o.Total, o.Currency),
		Subject:     fmt.Sprintf("Order #%d", o.ID),
		ProductCode: s.cfg.ProductCode,
		ReturnURL:   s.cfg.ReturnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create trade: %w", err)
	}

	s.logger.Info().Int64("order_id", o.ID).Str("out_trade_no", ref).Msg("payment attempt initiated")
	return form, nil
}

// CancelPayment cancels an unpaid order on operator demand. When a trade
// was already created remotely it is closed first so the buyer cannot pay
// against a dead order.
func (s *Service) CancelPayment(ctx context.Context, orderID int64) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.IsPaid() {
		return domainErrors.ErrOrderAlreadyPaid
	}

	if ref := o.TradeReference(); ref != "" {
		if err := s.client.CloseTrade(ctx, ref); err != nil {
			// A trade the buyer never opened cannot be closed; that is fine.
			s.logger.Warn().Err(err).Int64("order_id", o.ID).Str("out_trade_no", ref).Msg("close trade failed")
		}
	}

	if err := o.Cancel(); err != nil {
		return err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if err := s.orders.AddNote(ctx, o.ID, "Order cancelled by operator."); err != nil {
		s.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("failed to append cancellation note")
	}
	s.logger.Info().Int64("order_id", o.ID).Msg("order cancelled by operator")
	return nil
}

// ChargeRenewal starts a subscription renewal charge. Renewal references do
// not embed the order id positionally, so resolution relies on the metadata
// index. A confirmation query follows immediately: agreement charges often
// settle synchronously.
func (s *Service) ChargeRenewal(ctx context.Context, orderID int64, amount decimal.Decimal) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.IsPaid() {
		return domainErrors.ErrOrderAlreadyPaid
	}

	ref := trade.NewRenewalReference(o.ID, s.now())
	o.SetTradeReference(ref)
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("store renewal reference: %w", err)
	}

	if _, err := s.client.CreateTrade(ctx, alipay.TradeRequest{
		OutTradeNo:  ref,
		TotalAmount: s.converter.WireAmount(amount, o.Currency),
		Subject:     fmt.Sprintf("Subscription renewal for order #%d", o.ID),
		ProductCode: "CYCLE_PAY_AUTH",
	}); err != nil {
		return fmt.Errorf("create renewal trade: %w", err)
	}

	obs, err := s.client.QueryTrade(ctx, ref)
	if err != nil {
		// The webhook or the query sweep will settle it later.
		s.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("renewal confirmation query failed")
		return nil
	}
	if _, err := s.reconciler.Apply(ctx, o, obs); err != nil {
		return err
	}
	return nil
}
