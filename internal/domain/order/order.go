package order

import (
	"strconv"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Status represents the payment status of a commerce order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusOnHold     Status = "on-hold"
	StatusProcessing Status = "processing"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Metadata keys shared with the commerce platform. The provider echoes the
// merchant trade reference back in notifications, so the key names are part
// of the external contract and must not change.
const (
	MetaTradeReference    = "_alipay_out_trade_no"
	MetaTransactionClosed = "alipay_transaction_closed"
	MetaTimeoutDeadline   = "_alipay_timeout_time"
	MetaTimeoutMinutes    = "_alipay_timeout_duration"
	MetaRawNotification   = "alipay_notification_payload"
)

// Order is a mutable handle on a commerce-platform order. The platform owns
// the order lifecycle; this service only reads it and applies payment-state
// transitions through the table below.
type Order struct {
	ID            int64
	Status        Status
	Total         decimal.Decimal
	Currency      string
	TransactionID string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// transitions is the single authoritative payment-state transition table.
// Every component routes status changes through it.
var transitions = map[Status][]Status{
	StatusPending:    {StatusOnHold, StatusProcessing, StatusCancelled, StatusFailed},
	StatusOnHold:     {StatusProcessing, StatusCancelled, StatusFailed},
	StatusFailed:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransitionTo checks if the order can transition to the given status.
func (o *Order) CanTransitionTo(newStatus Status) bool {
	allowed, exists := transitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the order to a new payment status.
func (o *Order) TransitionTo(newStatus Status) error {
	if !o.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(o.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	o.Status = newStatus
	o.UpdatedAt = time.Now()
	return nil
}

// IsPaid reports whether payment settled. Refunded orders were settled
// before the refund, so they count.
func (o *Order) IsPaid() bool {
	return o.Status == StatusProcessing || o.Status == StatusRefunded
}

// NeedsPayment reports whether the order still awaits payment.
func (o *Order) NeedsPayment() bool {
	return o.Status == StatusPending || o.Status == StatusOnHold || o.Status == StatusFailed
}

// MarkPaid settles the order with the provider's transaction id.
func (o *Order) MarkPaid(transactionID string) error {
	if err := o.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	o.TransactionID = transactionID
	return nil
}

// Cancel transitions the order to cancelled.
func (o *Order) Cancel() error {
	return o.TransitionTo(StatusCancelled)
}

// MarkFailed transitions the order to failed.
func (o *Order) MarkFailed() error {
	return o.TransitionTo(StatusFailed)
}

// --- metadata accessors ---

func (o *Order) meta(key string) string {
	if o.Metadata == nil {
		return ""
	}
	return o.Metadata[key]
}

func (o *Order) setMeta(key, value string) {
	if o.Metadata == nil {
		o.Metadata = make(map[string]string)
	}
	o.Metadata[key] = value
}

// TradeReference returns the stored merchant trade reference, if any.
func (o *Order) TradeReference() string {
	return o.meta(MetaTradeReference)
}

// SetTradeReference stores the merchant trade reference for this attempt.
func (o *Order) SetTradeReference(ref string) {
	o.setMeta(MetaTradeReference, ref)
}

// TransactionClosed reports whether the provider closed the remote trade.
// Closed trades cannot be refunded through the provider.
func (o *Order) TransactionClosed() bool {
	return o.meta(MetaTransactionClosed) == "true"
}

// MarkTransactionClosed flags the remote trade as closed by the provider.
func (o *Order) MarkTransactionClosed() {
	o.setMeta(MetaTransactionClosed, "true")
}

// TimeoutDeadline returns the stored payment deadline, or zero if unset.
func (o *Order) TimeoutDeadline() time.Time {
	raw := o.meta(MetaTimeoutDeadline)
	if raw == "" {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// SetTimeoutDeadline stamps the payment deadline on the order.
func (o *Order) SetTimeoutDeadline(deadline time.Time, minutes int) {
	o.setMeta(MetaTimeoutDeadline, strconv.FormatInt(deadline.Unix(), 10))
	o.setMeta(MetaTimeoutMinutes, strconv.Itoa(minutes))
}
