package notification

import (
	"context"

	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
)

// Recorder persists every inbound notification attempt so failures can be
// retried later without re-triggering the provider.
type Recorder interface {
	Record(ctx context.Context, outTradeNo string, orderID int64, tradeNo, payload string) error
	Mark(ctx context.Context, outTradeNo string, status webhooklog.Status, lastError string) error
}

// OrphanAlert describes a successful remote payment with no resolvable
// local order. Money moved with no fulfillment record, so operators must
// be told.
type OrphanAlert struct {
	OrderID    int64
	OutTradeNo string
	TradeNo    string
	Category   string // auto_refunded | auto_refund_error | transaction_closed
}

// AlertSender fires operator alerts through the external notification
// collaborator.
type AlertSender interface {
	OrphanTransaction(ctx context.Context, alert OrphanAlert) error
}
