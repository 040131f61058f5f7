package controller_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cassiomorais/alipay-bridge/internal/application/notification"
	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	"github.com/cassiomorais/alipay-bridge/internal/application/webhookretry"
	"github.com/cassiomorais/alipay-bridge/internal/controller"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	"github.com/cassiomorais/alipay-bridge/internal/testutil"
	"github.com/rs/zerolog"
)

const testAppID = "2021000000000001"

func newWebhookController(client *alipay.MockClient, orders ...*order.Order) *controller.WebhookController {
	store := testutil.NewMockOrderStore(orders...)
	rec := reconcile.New(store, zerolog.Nop())
	handler := notification.NewHandler(
		notification.Config{AppID: testAppID, SiteID: "shop1"},
		store,
		trade.NewResolver(store),
		rec,
		client,
		currency.New("", []string{"CNY"}),
		webhookretry.NewLog(testutil.NewMockWebhookLogRepository(), nil, zerolog.Nop()),
		nil,
		zerolog.Nop(),
	)
	return controller.NewWebhookController(handler, nil, zerolog.Nop())
}

func postNotification(t *testing.T, c *controller.WebhookController, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/alipay", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	c.Receive(w, req)
	return w
}

func TestReceive_SuccessBody(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	c := newWebhookController(alipay.NewMockClient(), o)

	w := postNotification(t, c, url.Values{
		"out_trade_no": {"WooA42-1700000000"},
		"trade_no":     {"2024123456"},
		"trade_status": {"TRADE_SUCCESS"},
		"total_amount": {"100.00"},
		"app_id":       {testAppID},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if string(body) != "success" {
		t.Errorf("expected literal success body, got %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("expected text/plain, got %q", ct)
	}
	if !o.IsPaid() {
		t.Error("expected order paid")
	}
}

func TestReceive_FailBody(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	c := newWebhookController(alipay.NewMockClient(alipay.WithVerifyResult(false)), o)

	w := postNotification(t, c, url.Values{
		"out_trade_no": {"WooA42-1700000000"},
		"trade_status": {"TRADE_SUCCESS"},
		"total_amount": {"100.00"},
		"app_id":       {testAppID},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("protocol replies ride on 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "fail" {
		t.Errorf("expected literal fail body, got %q", body)
	}
}

func TestReceive_WaitBuyerPayEmptyBody(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	c := newWebhookController(alipay.NewMockClient(), o)

	w := postNotification(t, c, url.Values{
		"out_trade_no": {"WooA42-1700000000"},
		"trade_status": {"WAIT_BUYER_PAY"},
		"total_amount": {"100.00"},
		"app_id":       {testAppID},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestReceive_MalformedFormStill200(t *testing.T) {
	c := newWebhookController(alipay.NewMockClient())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/alipay", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	c.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("malformed payloads must still get 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}
