package alipay

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/google/uuid"
)

// MockClient is an in-memory Client for tests and sandbox runs. Trade
// observations are scripted per merchant reference; calls are recorded.
type MockClient struct {
	mu           sync.Mutex
	observations map[string]trade.Observation
	queryErr     error
	refundErr    error
	verifyOK     bool

	Created  []TradeRequest
	Refunds  []RefundRequest
	Closed   []string
	Queried  []string
	Verified []url.Values
}

type MockClientOption func(*MockClient)

// WithObservation scripts the observation returned for a reference.
func WithObservation(outTradeNo string, obs trade.Observation) MockClientOption {
	return func(m *MockClient) { m.observations[outTradeNo] = obs }
}

// WithQueryError makes every query fail with err.
func WithQueryError(err error) MockClientOption {
	return func(m *MockClient) { m.queryErr = err }
}

// WithRefundError makes every refund fail with err.
func WithRefundError(err error) MockClientOption {
	return func(m *MockClient) { m.refundErr = err }
}

// WithVerifyResult fixes the signature verification outcome.
func WithVerifyResult(ok bool) MockClientOption {
	return func(m *MockClient) { m.verifyOK = ok }
}

func NewMockClient(opts ...MockClientOption) *MockClient {
	m := &MockClient{
		observations: make(map[string]trade.Observation),
		verifyOK:     true,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Script replaces the observation for a reference after construction.
func (m *MockClient) Script(outTradeNo string, obs trade.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[outTradeNo] = obs
}

func (m *MockClient) CreateTrade(ctx context.Context, req TradeRequest) (*PayForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, req)
	return &PayForm{RedirectURL: "https://sandbox.example/pay?out_trade_no=" + url.QueryEscape(req.OutTradeNo)}, nil
}

func (m *MockClient) QueryTrade(ctx context.Context, outTradeNo string) (trade.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queried = append(m.Queried, outTradeNo)
	if m.queryErr != nil {
		return trade.Observation{}, m.queryErr
	}
	obs, ok := m.observations[outTradeNo]
	if !ok {
		return trade.Observation{
			OutTradeNo: outTradeNo,
			Code:       trade.CodeBusinessFailed,
			SubCode:    trade.SubCodeTradeNotExist,
			Message:    "trade not exist",
		}, nil
	}
	return obs, nil
}

func (m *MockClient) CloseTrade(ctx context.Context, outTradeNo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = append(m.Closed, outTradeNo)
	return nil
}

func (m *MockClient) Refund(ctx context.Context, req RefundRequest) (trade.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refundErr != nil {
		return trade.Observation{}, m.refundErr
	}
	m.Refunds = append(m.Refunds, req)
	return trade.Observation{
		OutTradeNo: req.OutTradeNo,
		TradeNo:    fmt.Sprintf("mock_refund_%s", uuid.New().String()[:8]),
		Code:       trade.CodeSuccess,
	}, nil
}

func (m *MockClient) VerifyNotification(params url.Values) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verified = append(m.Verified, params)
	return m.verifyOK
}
