package notification

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Reply is what the webhook endpoint must write back to the provider.
type Reply int

const (
	// ReplyNone means the request ends with an empty body.
	ReplyNone Reply = iota
	// ReplySuccess acknowledges the notification; the provider stops
	// redelivering it.
	ReplySuccess
	// ReplyFail tells the provider to redeliver later.
	ReplyFail
)

// Body returns the literal reply body the protocol expects.
func (r Reply) Body() string {
	switch r {
	case ReplySuccess:
		return "success"
	case ReplyFail:
		return "fail"
	default:
		return ""
	}
}

// Validation failure reasons recorded on the order.
const (
	ReasonMismatchedAppID = "mismatched_app_id"
	ReasonInvalidSign     = "invalid_response_signature"
	ReasonInvalidAmount   = "invalid_response_total_amount"
)

// Params are the fields extracted from a form-encoded notification.
type Params struct {
	OutTradeNo  string
	AppID       string
	TradeStatus trade.Status
	TradeNo     string
	TotalAmount string
	RefundFee   string
	Raw         url.Values
}

// ParamsFrom extracts notification parameters from the raw form values.
func ParamsFrom(raw url.Values) Params {
	return Params{
		OutTradeNo:  raw.Get("out_trade_no"),
		AppID:       raw.Get("app_id"),
		TradeStatus: trade.Status(raw.Get("trade_status")),
		TradeNo:     raw.Get("trade_no"),
		TotalAmount: raw.Get("total_amount"),
		RefundFee:   raw.Get("refund_fee"),
		Raw:         raw,
	}
}

// observation builds the reconciler input from the payload.
func (p Params) observation() trade.Observation {
	return trade.Observation{
		OutTradeNo:  p.OutTradeNo,
		TradeNo:     p.TradeNo,
		TradeStatus: p.TradeStatus,
		TotalAmount: p.TotalAmount,
	}
}

// needsReply reports whether the protocol requires an acknowledgment for
// this trade status. WAIT_BUYER_PAY exits silently.
func (p Params) needsReply() bool {
	switch p.TradeStatus {
	case trade.StatusSuccess, trade.StatusFinished, trade.StatusClosed:
		return true
	default:
		return false
	}
}

// Config holds the handler's identity settings.
type Config struct {
	AppID  string
	SiteID string // disambiguates refund idempotency keys across sites
}

// Handler runs the inbound webhook pipeline: record, resolve, verify,
// reconcile, reply.
type Handler struct {
	cfg        Config
	orders     order.Store
	resolver   *trade.Resolver
	reconciler *reconcile.Reconciler
	client     alipay.Client
	converter  currency.Converter
	recorder   Recorder
	alerts     AlertSender
	logger     zerolog.Logger
	now        func() time.Time
}

// NewHandler creates a notification Handler.
func NewHandler(
	cfg Config,
	orders order.Store,
	resolver *trade.Resolver,
	reconciler *reconcile.Reconciler,
	client alipay.Client,
	converter currency.Converter,
	recorder Recorder,
	alerts AlertSender,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:        cfg,
		orders:     orders,
		resolver:   resolver,
		reconciler: reconciler,
		client:     client,
		converter:  converter,
		recorder:   recorder,
		alerts:     alerts,
		logger:     logger.With().Str("component", "notification").Logger(),
		now:        time.Now,
	}
}

// Handle processes one inbound notification and returns the reply to send.
func (h *Handler) Handle(ctx context.Context, raw url.Values) Reply {
	p := ParamsFrom(raw)
	if p.OutTradeNo == "" {
		h.logger.Error().Msg("notification without out_trade_no dropped")
		return ReplyNone
	}

	// Record the attempt before validation so even signature failures are
	// visible and retry candidates.
	orderID, _ := trade.ParseOrderID(p.OutTradeNo)
	if err := h.recorder.Record(ctx, p.OutTradeNo, orderID, p.TradeNo, raw.Encode()); err != nil {
		h.logger.Error().Err(err).Str("out_trade_no", p.OutTradeNo).Msg("failed to record webhook attempt")
	}

	o, err := h.resolver.Resolve(ctx, p.OutTradeNo)
	if err != nil && !errors.Is(err, domainErrors.ErrOrderNotFound) {
		// The store failing is not the same as the order missing. Leave
		// the entry failed so the retry sweep reprocesses it once the
		// store recovers; the orphan path must never see this case.
		h.logger.Error().Err(err).Str("out_trade_no", p.OutTradeNo).Msg("order lookup failed")
		h.mark(ctx, p.OutTradeNo, webhooklog.StatusFailed, "order lookup failed")
		if p.needsReply() {
			return ReplyFail
		}
		return ReplyNone
	}
	if o == nil {
		return h.handleOrphan(ctx, p)
	}

	sigOK := h.client.VerifyNotification(raw)
	appOK := p.AppID == h.cfg.AppID
	amountOK := h.amountMatches(o, p)

	if !sigOK || !appOK || !amountOK {
		reason := ReasonInvalidAmount
		if !appOK {
			reason = ReasonMismatchedAppID
		} else if !sigOK {
			reason = ReasonInvalidSign
		}
		h.rejectOrder(ctx, o, reason)
		h.mark(ctx, p.OutTradeNo, webhooklog.StatusFailed, reason)
		if p.needsReply() {
			return ReplyFail
		}
		return ReplyNone
	}

	outcome, err := h.reconciler.Apply(ctx, o, p.observation())
	if err != nil {
		h.logger.Error().Err(err).Int64("order_id", o.ID).Msg("reconciliation failed")
		h.mark(ctx, p.OutTradeNo, webhooklog.StatusFailed, err.Error())
		if p.needsReply() {
			return ReplyFail
		}
		return ReplyNone
	}
	if outcome.Failed() {
		h.mark(ctx, p.OutTradeNo, webhooklog.StatusFailed, outcome.Message)
		if p.needsReply() {
			return ReplyFail
		}
		return ReplyNone
	}

	h.mark(ctx, p.OutTradeNo, webhooklog.StatusSuccess, "")
	if p.needsReply() {
		return ReplySuccess
	}
	return ReplyNone
}

// amountMatches applies the amount gate. Payment notifications must carry
// the exact converted order total. Refund notifications carry the original
// total plus a refund_fee; the fee must be positive and within the total.
func (h *Handler) amountMatches(o *order.Order, p Params) bool {
	if p.RefundFee != "" {
		fee, err := decimal.NewFromString(p.RefundFee)
		if err == nil && fee.IsPositive() {
			total := h.converter.Convert(o.Total, o.Currency)
			return fee.LessThanOrEqual(total)
		}
	}
	return h.converter.AmountMatches(o.Total, o.Currency, p.TotalAmount)
}

// rejectOrder marks the order failed with a diagnostic reason. Validation
// failures are never silently dropped.
func (h *Handler) rejectOrder(ctx context.Context, o *order.Order, reason string) {
	h.logger.Error().Int64("order_id", o.ID).Str("reason", reason).Msg("invalid provider notification")
	if err := o.MarkFailed(); err == nil {
		if err := h.orders.Update(ctx, o); err != nil {
			h.logger.Error().Err(err).Int64("order_id", o.ID).Msg("failed to persist failed status")
		}
	}
	if err := h.orders.AddNote(ctx, o.ID, "Invalid provider notification: "+reason); err != nil {
		h.logger.Warn().Err(err).Int64("order_id", o.ID).Msg("failed to append rejection note")
	}
}

// handleOrphan deals with a notification that resolves to no order at all.
// If the payment actually succeeded, money moved with no fulfillment
// record: refund it best-effort and alert operators either way.
func (h *Handler) handleOrphan(ctx context.Context, p Params) Reply {
	if !h.client.VerifyNotification(p.Raw) || p.AppID != h.cfg.AppID {
		// Unauthenticated noise for an unknown reference; close the entry
		// terminally so the retry sweep never re-queries it.
		h.logger.Warn().Str("out_trade_no", p.OutTradeNo).Msg("unauthenticated notification for unknown order dropped")
		h.mark(ctx, p.OutTradeNo, webhooklog.StatusIgnored, "unauthenticated notification for unknown order")
		return ReplyNone
	}

	h.logger.Error().Str("out_trade_no", p.OutTradeNo).Str("trade_no", p.TradeNo).Msg("notification for unknown order")
	h.mark(ctx, p.OutTradeNo, webhooklog.StatusFailed, "order not found")

	switch p.TradeStatus {
	case trade.StatusSuccess:
		h.refundOrphan(ctx, p)
	case trade.StatusClosed, trade.StatusFinished:
		// Nothing left to refund; the provider already closed the trade.
		h.alert(ctx, OrphanAlert{OutTradeNo: p.OutTradeNo, TradeNo: p.TradeNo, Category: "transaction_closed"})
	}
	return ReplyNone
}

func (h *Handler) refundOrphan(ctx context.Context, p Params) {
	// Refunding by a synthesized reference alone is never safe; fail
	// closed to alert-only when either identifier is missing.
	if p.TradeNo == "" || p.TotalAmount == "" {
		h.alert(ctx, OrphanAlert{OutTradeNo: p.OutTradeNo, TradeNo: p.TradeNo, Category: "auto_refund_error"})
		return
	}

	obs, err := h.client.Refund(ctx, alipay.RefundRequest{
		OutTradeNo:   p.OutTradeNo,
		TradeNo:      p.TradeNo,
		RefundAmount: p.TotalAmount,
		OutRequestNo: trade.NewRefundRequestNo(h.cfg.SiteID, 0, h.now()),
		Reason:       "payment received for unknown order",
	})
	if err != nil || !obs.Succeeded() {
		h.logger.Error().Err(err).Str("trade_no", p.TradeNo).Msg("orphan transaction auto-refund failed")
		h.alert(ctx, OrphanAlert{OutTradeNo: p.OutTradeNo, TradeNo: p.TradeNo, Category: "auto_refund_error"})
		return
	}

	h.logger.Error().Str("trade_no", p.TradeNo).Str("amount", p.TotalAmount).Msg("orphan transaction auto-refunded")
	h.alert(ctx, OrphanAlert{OutTradeNo: p.OutTradeNo, TradeNo: p.TradeNo, Category: "auto_refunded"})
}

func (h *Handler) alert(ctx context.Context, a OrphanAlert) {
	if h.alerts == nil {
		return
	}
	if err := h.alerts.OrphanTransaction(ctx, a); err != nil {
		h.logger.Error().Err(err).Str("out_trade_no", a.OutTradeNo).Msg("failed to send orphan alert")
	}
}

func (h *Handler) mark(ctx context.Context, outTradeNo string, status webhooklog.Status, lastError string) {
	if err := h.recorder.Mark(ctx, outTradeNo, status, lastError); err != nil {
		h.logger.Warn().Err(err).Str("out_trade_no", outTradeNo).Msg("failed to mark webhook log")
	}
}
