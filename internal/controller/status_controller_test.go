package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cassiomorais/alipay-bridge/internal/application/query"
	"github.com/cassiomorais/alipay-bridge/internal/application/reconcile"
	"github.com/cassiomorais/alipay-bridge/internal/controller"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func statusCheckRouter(client *alipay.MockClient, token string, orders ...*order.Order) http.Handler {
	store := testutil.NewMockOrderStore(orders...)
	rec := reconcile.New(store, zerolog.Nop())
	qa := query.NewAgent(store, client, rec, query.Config{}, zerolog.Nop())
	sc := controller.NewStatusController(store, qa, token, "https://shop.example/thank-you", zerolog.Nop())

	r := chi.NewRouter()
	r.Post("/api/v1/orders/{id}/status-check", sc.Check)
	return r
}

func postStatusCheck(t *testing.T, h http.Handler, orderID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/status-check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCheck_PaidOrder(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "txn")
	h := statusCheckRouter(alipay.NewMockClient(), "", o)

	w := postStatusCheck(t, h, "42", `{}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp controller.StatusCheckResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "paid" {
		t.Errorf("expected paid, got %q", resp.Status)
	}
	if resp.Redirect != "https://shop.example/thank-you" {
		t.Errorf("expected redirect, got %q", resp.Redirect)
	}
}

func TestCheck_PendingOrder(t *testing.T) {
	o := testutil.NewPendingOrder(42, "100.00", "WooA42-1700000000")
	h := statusCheckRouter(alipay.NewMockClient(), "", o)

	w := postStatusCheck(t, h, "42", `{}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp controller.StatusCheckResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" {
		t.Errorf("expected pending, got %q", resp.Status)
	}
	if resp.Redirect != "" {
		t.Errorf("pending order must not redirect, got %q", resp.Redirect)
	}
}

func TestCheck_TokenEnforced(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "txn")
	h := statusCheckRouter(alipay.NewMockClient(), "secret", o)

	w := postStatusCheck(t, h, "42", `{"token":"wrong"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	w = postStatusCheck(t, h, "42", `{"token":"secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with the right token, got %d", w.Code)
	}
}

func TestCheck_UnknownOrder(t *testing.T) {
	h := statusCheckRouter(alipay.NewMockClient(), "")

	w := postStatusCheck(t, h, "99", `{}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCheck_NonNumericID(t *testing.T) {
	h := statusCheckRouter(alipay.NewMockClient(), "")

	w := postStatusCheck(t, h, "abc", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
