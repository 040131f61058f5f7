package webhooklog

import (
	"time"

	"github.com/google/uuid"
)

// Status of a webhook log entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusIgnored is terminal: the payload failed authentication for a
	// reference no order matches, so re-querying it would be wasted work.
	StatusIgnored Status = "ignored"
)

// DedupeWindow is the span within which repeated notifications for the same
// merchant trade reference update one entry instead of inserting duplicates.
const DedupeWindow = time.Hour

// Entry is a persisted record of an inbound notification attempt and its
// outcome. Entries are never deleted by this service; retention is an
// external policy.
type Entry struct {
	ID          uuid.UUID
	OrderID     int64
	OutTradeNo  string
	TradeNo     string
	RequestData string
	Status      Status
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEntry creates a pending log entry for a first-seen notification.
func NewEntry(orderID int64, outTradeNo, tradeNo, requestData string) *Entry {
	now := time.Now()
	return &Entry{
		ID:          uuid.New(),
		OrderID:     orderID,
		OutTradeNo:  outTradeNo,
		TradeNo:     tradeNo,
		RequestData: requestData,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Retryable reports whether the entry is still within its retry budget.
func (e *Entry) Retryable(maxRetries int) bool {
	return e.Status == StatusFailed && e.RetryCount < maxRetries
}
