package notification_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/cassiomorais/alipay-bridge/internal/application/notification"
	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	"github.com/cassiomorais/alipay-bridge/internal/application/webhookretry"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	"github.com/cassiomorais/alipay-bridge/internal/testutil"
	"github.com/rs/zerolog"
)

const testAppID = "2021000000000001"

type mockAlertSender struct {
	mu     sync.Mutex
	Alerts []notification.OrphanAlert
}

func (m *mockAlertSender) OrphanTransaction(ctx context.Context, a notification.OrphanAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, a)
	return nil
}

type handlerFixture struct {
	handler *notification.Handler
	store   *testutil.MockOrderStore
	logRepo *testutil.MockWebhookLogRepository
	client  *alipay.MockClient
	alerts  *mockAlertSender
}

func newHandlerFixture(client *alipay.MockClient, orders ...*order.Order) *handlerFixture {
	store := testutil.NewMockOrderStore(orders...)
	logRepo := testutil.NewMockWebhookLogRepository()
	alerts := &mockAlertSender{}
	conv := currency.New("", []string{"CNY"})
	rec := reconcile.New(store, zerolog.Nop())
	h := notification.NewHandler(
		notification.Config{AppID: testAppID, SiteID: "shop1"},
		store,
		trade.NewResolver(store),
		rec,
		client,
		conv,
		webhookretry.NewLog(logRepo, nil, zerolog.Nop()),
		alerts,
		zerolog.Nop(),
	)
	return &handlerFixture{handler: h, store: store, logRepo: logRepo, client: client, alerts: alerts}
}

func paymentNotification(outTradeNo, tradeNo, status, amount string) url.Values {
	return url.Values{
		"out_trade_no": {outTradeNo},
		"trade_no":     {tradeNo},
		"trade_status": {status},
		"total_amount": {amount},
		"app_id":       {testAppID},
	}
}

func logStatusFor(t *testing.T, repo *testutil.MockWebhookLogRepository, outTradeNo string) *webhooklog.Entry {
	t.Helper()
	for _, e := range repo.All() {
		if e.OutTradeNo == outTradeNo {
			return e
		}
	}
	t.Fatalf("no webhook log entry for %s", outTradeNo)
	return nil
}

func TestHandle_ValidSuccessNotification(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(), o)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA42-1700000000", "2024123456", "TRADE_SUCCESS", "100.00"))

	if reply != notification.ReplySuccess {
		t.Fatalf("expected success reply, got %q", reply.Body())
	}
	if !o.IsPaid() {
		t.Error("expected order marked paid")
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.Status != webhooklog.StatusSuccess {
		t.Errorf("expected log entry success, got %s", entry.Status)
	}
}

func TestHandle_AmountMismatchFailsOrder(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(), o)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA42-1700000000", "2024123456", "TRADE_SUCCESS", "99.99"))

	if reply != notification.ReplyFail {
		t.Fatalf("expected fail reply, got %q", reply.Body())
	}
	if o.Status != order.StatusFailed {
		t.Errorf("expected order failed, got %s", o.Status)
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.LastError != notification.ReasonInvalidAmount {
		t.Errorf("expected amount reason, got %q", entry.LastError)
	}
	notes := f.store.Notes[42]
	if len(notes) == 0 || !strings.Contains(notes[0], notification.ReasonInvalidAmount) {
		t.Errorf("expected rejection note with amount reason, got %v", notes)
	}
}

func TestHandle_BadSignature(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(alipay.WithVerifyResult(false)), o)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA42-1700000000", "t", "TRADE_SUCCESS", "100.00"))

	if reply != notification.ReplyFail {
		t.Fatalf("expected fail reply, got %q", reply.Body())
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.LastError != notification.ReasonInvalidSign {
		t.Errorf("expected signature reason, got %q", entry.LastError)
	}
}

func TestHandle_WaitBuyerPayBadSignatureRepliesEmpty(t *testing.T) {
	// Only statuses requiring acknowledgment may answer "fail"; an invalid
	// WAIT_BUYER_PAY payload exits silently like a valid one.
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(alipay.WithVerifyResult(false)), o)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA42-1700000000", "t", "WAIT_BUYER_PAY", "100.00"))

	if reply != notification.ReplyNone {
		t.Fatalf("expected empty reply, got %q", reply.Body())
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.LastError != notification.ReasonInvalidSign {
		t.Errorf("expected signature reason recorded, got %q", entry.LastError)
	}
}

func TestHandle_MismatchedAppIDTakesPrecedence(t *testing.T) {
	// A wrong app_id on top of a bad signature must report the app_id
	// reason; it is the stronger signal of a cross-merchant payload.
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(alipay.WithVerifyResult(false)), o)

	params := paymentNotification("WooA42-1700000000", "t", "TRADE_SUCCESS", "100.00")
	params.Set("app_id", "other-app")
	reply := f.handler.Handle(context.Background(), params)

	if reply != notification.ReplyFail {
		t.Fatalf("expected fail reply, got %q", reply.Body())
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.LastError != notification.ReasonMismatchedAppID {
		t.Errorf("expected app_id reason, got %q", entry.LastError)
	}
}

func TestHandle_RefundNotificationWithinTotal(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	o.SetTradeReference("WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(), o)

	params := paymentNotification("WooA42-1700000000", "2024123456", "TRADE_SUCCESS", "100.00")
	params.Set("refund_fee", "30.00")
	reply := f.handler.Handle(context.Background(), params)

	if reply != notification.ReplySuccess {
		t.Fatalf("expected success reply, got %q", reply.Body())
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.Status != webhooklog.StatusSuccess {
		t.Errorf("expected log success, got %s", entry.Status)
	}
}

func TestHandle_RefundFeeAboveTotalRejected(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	o.SetTradeReference("WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(), o)

	params := paymentNotification("WooA42-1700000000", "2024123456", "TRADE_SUCCESS", "100.00")
	params.Set("refund_fee", "150.00")
	reply := f.handler.Handle(context.Background(), params)

	if reply != notification.ReplyFail {
		t.Fatalf("expected fail reply, got %q", reply.Body())
	}
}

func TestHandle_WaitBuyerPayRepliesEmpty(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	f := newHandlerFixture(alipay.NewMockClient(), o)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA42-1700000000", "t", "WAIT_BUYER_PAY", "100.00"))

	if reply != notification.ReplyNone {
		t.Fatalf("expected empty reply, got %q", reply.Body())
	}
	if o.Status != order.StatusPending {
		t.Errorf("expected pending, got %s", o.Status)
	}
}

func TestHandle_MissingOutTradeNoDropped(t *testing.T) {
	f := newHandlerFixture(alipay.NewMockClient())

	reply := f.handler.Handle(context.Background(), url.Values{"trade_status": {"TRADE_SUCCESS"}})

	if reply != notification.ReplyNone {
		t.Fatalf("expected empty reply, got %q", reply.Body())
	}
	if len(f.logRepo.All()) != 0 {
		t.Error("payload without a reference must not be recorded")
	}
}

func TestHandle_StoreOutageDoesNotAutoRefund(t *testing.T) {
	// The order exists but the store is down. The payment must not be
	// treated as orphaned and refunded; the entry stays failed for the
	// retry sweep.
	o := testutil.NewPendingOrder(42, "99.00", "WooA42-1700000000")
	client := alipay.NewMockClient()
	f := newHandlerFixture(client, o)
	boom := errors.New("connection refused")
	f.store.GetFunc = func(ctx context.Context, id int64) (*order.Order, error) {
		return nil, boom
	}
	f.store.FindByTradeReferenceFunc = func(ctx context.Context, ref string) (*order.Order, error) {
		return nil, boom
	}

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA42-1700000000", "2024123456", "TRADE_SUCCESS", "99.00"))

	if reply != notification.ReplyFail {
		t.Fatalf("expected fail reply so the provider redelivers, got %q", reply.Body())
	}
	if len(client.Refunds) != 0 {
		t.Fatalf("store outage must not trigger a refund, got %d", len(client.Refunds))
	}
	if len(f.alerts.Alerts) != 0 {
		t.Errorf("store outage must not raise orphan alerts, got %+v", f.alerts.Alerts)
	}
	if o.Status != order.StatusPending {
		t.Errorf("order must be untouched, got %s", o.Status)
	}
	entry := logStatusFor(t, f.logRepo, "WooA42-1700000000")
	if entry.Status != webhooklog.StatusFailed || entry.LastError != "order lookup failed" {
		t.Errorf("expected failed entry with lookup error, got %s %q", entry.Status, entry.LastError)
	}
	if !entry.Retryable(5) {
		t.Error("entry must stay retryable for the sweep")
	}
}

func TestHandle_StoreOutageOnWaitRepliesEmpty(t *testing.T) {
	f := newHandlerFixture(alipay.NewMockClient())
	f.store.FindByTradeReferenceFunc = func(ctx context.Context, ref string) (*order.Order, error) {
		return nil, errors.New("connection refused")
	}

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA999-1700000000", "t", "WAIT_BUYER_PAY", "10.00"))

	if reply != notification.ReplyNone {
		t.Fatalf("expected empty reply, got %q", reply.Body())
	}
}

func TestHandle_OrphanSuccessIsAutoRefunded(t *testing.T) {
	client := alipay.NewMockClient()
	f := newHandlerFixture(client)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA999-1700000000", "2024999", "TRADE_SUCCESS", "55.00"))

	if reply != notification.ReplyNone {
		t.Fatalf("expected empty reply, got %q", reply.Body())
	}
	if len(client.Refunds) != 1 {
		t.Fatalf("expected one auto-refund, got %d", len(client.Refunds))
	}
	req := client.Refunds[0]
	if req.TradeNo != "2024999" || req.RefundAmount != "55.00" {
		t.Errorf("unexpected refund request: %+v", req)
	}
	if len(f.alerts.Alerts) != 1 || f.alerts.Alerts[0].Category != "auto_refunded" {
		t.Errorf("expected auto_refunded alert, got %+v", f.alerts.Alerts)
	}
	entry := logStatusFor(t, f.logRepo, "WooA999-1700000000")
	if entry.Status != webhooklog.StatusFailed {
		t.Errorf("orphan must stay failed for later inspection, got %s", entry.Status)
	}
}

func TestHandle_OrphanRefundFailsClosedWithoutTradeNo(t *testing.T) {
	client := alipay.NewMockClient()
	f := newHandlerFixture(client)

	params := paymentNotification("WooA999-1700000000", "", "TRADE_SUCCESS", "55.00")
	f.handler.Handle(context.Background(), params)

	if len(client.Refunds) != 0 {
		t.Fatalf("must not refund without a trade number, got %d refunds", len(client.Refunds))
	}
	if len(f.alerts.Alerts) != 1 || f.alerts.Alerts[0].Category != "auto_refund_error" {
		t.Errorf("expected auto_refund_error alert, got %+v", f.alerts.Alerts)
	}
}

func TestHandle_OrphanClosedAlertsOnly(t *testing.T) {
	client := alipay.NewMockClient()
	f := newHandlerFixture(client)

	f.handler.Handle(context.Background(), paymentNotification("WooA999-1700000000", "2024999", "TRADE_CLOSED", "55.00"))

	if len(client.Refunds) != 0 {
		t.Errorf("closed trade must not be refunded")
	}
	if len(f.alerts.Alerts) != 1 || f.alerts.Alerts[0].Category != "transaction_closed" {
		t.Errorf("expected transaction_closed alert, got %+v", f.alerts.Alerts)
	}
}

func TestHandle_UnauthenticatedOrphanIgnored(t *testing.T) {
	client := alipay.NewMockClient(alipay.WithVerifyResult(false))
	f := newHandlerFixture(client)

	reply := f.handler.Handle(context.Background(), paymentNotification("WooA999-1700000000", "2024999", "TRADE_SUCCESS", "55.00"))

	if reply != notification.ReplyNone {
		t.Fatalf("expected empty reply, got %q", reply.Body())
	}
	if len(client.Refunds) != 0 || len(f.alerts.Alerts) != 0 {
		t.Error("unauthenticated orphan payload must not trigger refunds or alerts")
	}
	entry := logStatusFor(t, f.logRepo, "WooA999-1700000000")
	if entry.Status != webhooklog.StatusIgnored {
		t.Errorf("expected ignored entry, got %s", entry.Status)
	}
	if entry.Retryable(5) {
		t.Error("ignored entry must never re-enter the retry sweep")
	}
}

func TestReplyBody(t *testing.T) {
	if got := notification.ReplySuccess.Body(); got != "success" {
		t.Errorf("success body = %q", got)
	}
	if got := notification.ReplyFail.Body(); got != "fail" {
		t.Errorf("fail body = %q", got)
	}
	if got := notification.ReplyNone.Body(); got != "" {
		t.Errorf("none body = %q", got)
	}
}
