package alipay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// API method names on the provider gateway.
const (
	methodPagePay = "alipay.trade.page.pay"
	methodQuery   = "alipay.trade.query"
	methodClose   = "alipay.trade.close"
	methodRefund  = "alipay.trade.refund"
)

// GatewayConfig holds the provider endpoint and merchant identity.
type GatewayConfig struct {
	AppID      string
	GatewayURL string
	NotifyURL  string
	Charset    string
	SignType   string
	Timeout    time.Duration
}

// GatewayClient is the production Client implementation speaking the
// provider's form-encoded openapi protocol. Transient transport failures
// retry with backoff; sustained failures trip the circuit breaker.
type GatewayClient struct {
	cfg     GatewayConfig
	signer  Signer
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[map[string]json.RawMessage]
	retry   retry.Config
	logger  zerolog.Logger
}

// NewGatewayClient creates a GatewayClient.
func NewGatewayClient(cfg GatewayConfig, signer Signer, logger zerolog.Logger) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[map[string]json.RawMessage](gobreaker.Settings{
		Name:        "alipay-gateway",
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
	return &GatewayClient{
		cfg:     cfg,
		signer:  signer,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: logger.With().Str("component", "alipay_gateway").Logger(),
	}
}

// CreateTrade builds the signed redirect URL for the buyer. Trade creation
// is redirect-driven: the provider registers the trade when the buyer lands.
func (c *GatewayClient) CreateTrade(ctx context.Context, req TradeRequest) (*PayForm, error) {
	biz := map[string]string{
		"out_trade_no": req.OutTradeNo,
		"total_amount": req.TotalAmount,
		"subject":      req.Subject,
		"product_code": req.ProductCode,
	}
	params, err := c.requestParams(methodPagePay, biz)
	if err != nil {
		return nil, err
	}
	if req.ReturnURL != "" {
		params.Set("return_url", req.ReturnURL)
	}
	sign, err := c.signer.Sign(params)
	if err != nil {
		return nil, fmt.Errorf("sign pay request: %w", err)
	}
	params.Set("sign", sign)

	return &PayForm{RedirectURL: c.cfg.GatewayURL + "?" + params.Encode()}, nil
}

// QueryTrade fetches the provider's authoritative trade state.
func (c *GatewayClient) QueryTrade(ctx context.Context, outTradeNo string) (trade.Observation, error) {
	body, err := c.execute(ctx, methodQuery, map[string]string{"out_trade_no": outTradeNo})
	if err != nil {
		return trade.Observation{}, err
	}
	return parseObservation(body, "alipay_trade_query_response")
}

// CloseTrade closes an unpaid trade.
func (c *GatewayClient) CloseTrade(ctx context.Context, outTradeNo string) error {
	body, err := c.execute(ctx, methodClose, map[string]string{"out_trade_no": outTradeNo})
	if err != nil {
		return err
	}
	obs, err := parseObservation(body, "alipay_trade_close_response")
	if err != nil {
		return err
	}
	if !obs.Succeeded() {
		return fmt.Errorf("close trade %s: %s", outTradeNo, obs.ErrorMessage())
	}
	return nil
}

// Refund issues a refund request keyed by OutRequestNo.
func (c *GatewayClient) Refund(ctx context.Context, req RefundRequest) (trade.Observation, error) {
	biz := map[string]string{
		"out_trade_no":   req.OutTradeNo,
		"trade_no":       req.TradeNo,
		"refund_amount":  req.RefundAmount,
		"out_request_no": req.OutRequestNo,
		"refund_reason":  req.Reason,
	}
	body, err := c.execute(ctx, methodRefund, biz)
	if err != nil {
		return trade.Observation{}, err
	}
	return parseObservation(body, "alipay_trade_refund_response")
}

// VerifyNotification delegates to the signature capability.
func (c *GatewayClient) VerifyNotification(params url.Values) bool {
	return c.signer.Verify(params)
}

func (c *GatewayClient) requestParams(method string, biz map[string]string) (url.Values, error) {
	bizContent, err := json.Marshal(biz)
	if err != nil {
		return nil, fmt.Errorf("marshal biz_content: %w", err)
	}
	charset := c.cfg.Charset
	if charset == "" {
		charset = "utf-8"
	}
	signType := c.cfg.SignType
	if signType == "" {
		signType = "RSA2"
	}
	params := url.Values{}
	params.Set("app_id", c.cfg.AppID)
	params.Set("method", method)
	params.Set("charset", charset)
	params.Set("sign_type", signType)
	params.Set("timestamp", time.Now().Format("2006-01-02 15:04:05"))
	params.Set("version", "1.0")
	params.Set("biz_content", string(bizContent))
	if c.cfg.NotifyURL != "" {
		params.Set("notify_url", c.cfg.NotifyURL)
	}
	return params, nil
}

// execute signs and posts a request, returning the raw top-level response
// object keyed by "<method>_response".
func (c *GatewayClient) execute(ctx context.Context, method string, biz map[string]string) (map[string]json.RawMessage, error) {
	params, err := c.requestParams(method, biz)
	if err != nil {
		return nil, err
	}
	sign, err := c.signer.Sign(params)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	params.Set("sign", sign)

	return c.breaker.Execute(func() (map[string]json.RawMessage, error) {
		return retry.DoWithResult(ctx, c.retry, func() (map[string]json.RawMessage, error) {
			return c.post(ctx, params)
		})
	})
}

func (c *GatewayClient) post(ctx context.Context, params url.Values) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return body, nil
}

func parseObservation(body map[string]json.RawMessage, key string) (trade.Observation, error) {
	raw, ok := body[key]
	if !ok {
		return trade.Observation{}, fmt.Errorf("malformed provider response: missing %s", key)
	}
	var payload struct {
		Code        string `json:"code"`
		Msg         string `json:"msg"`
		SubCode     string `json:"sub_code"`
		SubMsg      string `json:"sub_msg"`
		OutTradeNo  string `json:"out_trade_no"`
		TradeNo     string `json:"trade_no"`
		TradeStatus string `json:"trade_status"`
		TotalAmount string `json:"total_amount"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return trade.Observation{}, fmt.Errorf("decode %s: %w", key, err)
	}
	msg := payload.SubMsg
	if msg == "" {
		msg = payload.Msg
	}
	return trade.Observation{
		OutTradeNo:  payload.OutTradeNo,
		TradeNo:     payload.TradeNo,
		TradeStatus: trade.Status(payload.TradeStatus),
		TotalAmount: payload.TotalAmount,
		Code:        payload.Code,
		SubCode:     payload.SubCode,
		Message:     msg,
	}, nil
}
