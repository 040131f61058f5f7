package alipay

import (
	"context"
	"net/url"

	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
)

// TradeRequest carries what the provider needs to create a trade.
type TradeRequest struct {
	OutTradeNo  string
	TotalAmount string // settlement currency, "x.xx"
	Subject     string
	ProductCode string
	ReturnURL   string
}

// RefundRequest carries a single refund operation. OutRequestNo is the
// idempotency key; the provider treats repeated requests with the same key
// as one refund.
type RefundRequest struct {
	OutTradeNo   string
	TradeNo      string
	RefundAmount string
	OutRequestNo string
	Reason       string
}

// PayForm is the redirect payload the buyer is sent to the provider with.
type PayForm struct {
	RedirectURL string
}

// Signer is the black-box signature capability. Key handling and the
// signature algorithm live behind it.
type Signer interface {
	// Sign returns the signature for the given request parameters.
	Sign(params url.Values) (string, error)
	// Verify checks an inbound notification's signature.
	Verify(params url.Values) bool
}

// Client wraps outbound calls to the remote payment API plus signature
// verification of inbound notifications.
type Client interface {
	// CreateTrade registers a trade and returns the buyer redirect payload.
	CreateTrade(ctx context.Context, req TradeRequest) (*PayForm, error)
	// QueryTrade asks the provider for ground truth on a trade.
	QueryTrade(ctx context.Context, outTradeNo string) (trade.Observation, error)
	// CloseTrade closes an unpaid trade on the provider side.
	CloseTrade(ctx context.Context, outTradeNo string) error
	// Refund refunds part or all of a settled trade.
	Refund(ctx context.Context, req RefundRequest) (trade.Observation, error)
	// VerifyNotification checks the authenticity of an inbound payload.
	VerifyNotification(params url.Values) bool
}
