package controller

import (
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string amounts, validation tags).
// Controllers convert these before calling business logic.

// StatusCheckRequest holds the input for the payment status check the
// storefront polls while the buyer is away at the provider.
type StatusCheckRequest struct {
	Token string `json:"token"`
}

// RefundOrderRequest holds the input for an operator-initiated refund.
// Amount is a decimal string in the order's store currency.
type RefundOrderRequest struct {
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"max=256"`
}

// --- Response DTOs ---

// StatusCheckResponse reports whether payment settled.
type StatusCheckResponse struct {
	Status   string `json:"status"` // paid | pending
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// PayResponse carries the provider redirect payload for checkout.
type PayResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// RetryResponse reports the result of a manual webhook retry.
type RetryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookLogResponse represents one webhook log entry in the admin view.
type WebhookLogResponse struct {
	ID         string    `json:"id"`
	OrderID    int64     `json:"order_id"`
	OutTradeNo string    `json:"out_trade_no"`
	TradeNo    string    `json:"trade_no,omitempty"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WebhookLogListResponse is the admin listing plus aggregate counts.
type WebhookLogListResponse struct {
	Entries []*WebhookLogResponse `json:"entries"`
	Counts  map[string]int        `json:"counts"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromWebhookLog converts a log entry to its admin view. The raw request
// payload stays out of the listing; it may carry buyer details.
func FromWebhookLog(e *webhooklog.Entry) *WebhookLogResponse {
	return &WebhookLogResponse{
		ID:         e.ID.String(),
		OrderID:    e.OrderID,
		OutTradeNo: e.OutTradeNo,
		TradeNo:    e.TradeNo,
		Status:     string(e.Status),
		RetryCount: e.RetryCount,
		LastError:  e.LastError,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}
