package testutil

import (
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/shopspring/decimal"
)

// NewTestOrder builds an unpaid order in the given status.
func NewTestOrder(id int64, status order.Status, total string, currency string) *order.Order {
	now := time.Now()
	amount, err := decimal.NewFromString(total)
	if err != nil {
		panic("testutil: bad total " + total)
	}
	return &order.Order{
		ID:        id,
		Status:    status,
		Total:     amount,
		Currency:  currency,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPendingOrder builds a pending CNY order with a stored trade reference.
func NewPendingOrder(id int64, total string, ref string) *order.Order {
	o := NewTestOrder(id, order.StatusPending, total, "CNY")
	if ref != "" {
		o.SetTradeReference(ref)
	}
	return o
}

// NewPaidOrder builds a settled order with the given transaction id.
func NewPaidOrder(id int64, total string, transactionID string) *order.Order {
	o := NewTestOrder(id, order.StatusProcessing, total, "CNY")
	o.TransactionID = transactionID
	return o
}
