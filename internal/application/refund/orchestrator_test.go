package refund_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cassiomorais/alipay-bridge/internal/application/refund"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/alipay"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/currency"
	"github.com/cassiomorais/alipay-bridge/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newOrchestrator(client *alipay.MockClient, orders ...*order.Order) (*refund.Orchestrator, *testutil.MockOrderStore) {
	store := testutil.NewMockOrderStore(orders...)
	conv := currency.New("", []string{"CNY"})
	return refund.NewOrchestrator(store, client, conv, "shop1", zerolog.Nop()), store
}

func TestExecute_FullRefund(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	o.SetTradeReference("WooA42-1700000000")
	client := alipay.NewMockClient()
	orch, store := newOrchestrator(client, o)

	if err := orch.Execute(context.Background(), 42, decimal.RequireFromString("100.00"), "customer request"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	if len(client.Refunds) != 1 {
		t.Fatalf("expected one refund call, got %d", len(client.Refunds))
	}
	req := client.Refunds[0]
	if req.OutTradeNo != "WooA42-1700000000" {
		t.Errorf("expected stored reference, got %q", req.OutTradeNo)
	}
	if req.TradeNo != "2024123456" {
		t.Errorf("expected transaction id, got %q", req.TradeNo)
	}
	if req.RefundAmount != "100.00" {
		t.Errorf("expected amount 100.00, got %q", req.RefundAmount)
	}
	if len(req.OutRequestNo) != 64 {
		t.Errorf("expected 64-char request no, got %d chars", len(req.OutRequestNo))
	}
	if !strings.HasPrefix(req.OutRequestNo, "0") {
		t.Errorf("expected zero-padded request no, got %q", req.OutRequestNo)
	}

	notes := store.Notes[42]
	if len(notes) != 1 || !strings.HasPrefix(notes[0], "Refunded 100.00 - Refund ID: #") {
		t.Errorf("unexpected notes: %v", notes)
	}
	if strings.Contains(notes[0], "#0") {
		t.Errorf("refund id in note must not keep the zero padding: %q", notes[0])
	}
}

func TestExecute_PartialRefund(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	client := alipay.NewMockClient()
	orch, _ := newOrchestrator(client, o)

	if err := orch.Execute(context.Background(), 42, decimal.RequireFromString("33.50"), ""); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if client.Refunds[0].RefundAmount != "33.50" {
		t.Errorf("expected 33.50, got %q", client.Refunds[0].RefundAmount)
	}
}

func TestExecute_ClosedTransaction(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	o.MarkTransactionClosed()
	orch, _ := newOrchestrator(alipay.NewMockClient(), o)

	err := orch.Execute(context.Background(), 42, decimal.RequireFromString("10.00"), "")
	if !errors.Is(err, domainErrors.ErrTransactionClosed) {
		t.Fatalf("expected closed-transaction error, got %v", err)
	}
	var de *domainErrors.DomainError
	if !errors.As(err, &de) || de.Code != "alipay_transaction_closed" {
		t.Errorf("expected domain error code alipay_transaction_closed, got %v", err)
	}
}

func TestExecute_MissingTransactionID(t *testing.T) {
	o := testutil.NewTestOrder(42, order.StatusProcessing, "100.00", "CNY")
	orch, _ := newOrchestrator(alipay.NewMockClient(), o)

	err := orch.Execute(context.Background(), 42, decimal.RequireFromString("10.00"), "")
	if !errors.Is(err, domainErrors.ErrTransactionMissing) {
		t.Fatalf("expected missing-transaction error, got %v", err)
	}
}

func TestExecute_AmountOutOfBounds(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	orch, _ := newOrchestrator(alipay.NewMockClient(), o)
	ctx := context.Background()

	for _, amount := range []string{"0.00", "-5.00", "100.01"} {
		err := orch.Execute(ctx, 42, decimal.RequireFromString(amount), "")
		if !errors.Is(err, domainErrors.ErrInvalidRefundAmount) {
			t.Errorf("amount %s: expected invalid-amount error, got %v", amount, err)
		}
	}
}

func TestExecute_ProviderRejectionSurfacesMessage(t *testing.T) {
	o := testutil.NewPaidOrder(42, "100.00", "2024123456")
	client := alipay.NewMockClient(alipay.WithRefundError(errors.New("connection reset")))
	orch, store := newOrchestrator(client, o)

	err := orch.Execute(context.Background(), 42, decimal.RequireFromString("10.00"), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("provider error must surface verbatim, got %v", err)
	}
	if len(store.Notes[42]) != 0 {
		t.Errorf("failed refund must not leave a success note, got %v", store.Notes[42])
	}
}

func TestExecute_UnknownOrder(t *testing.T) {
	orch, _ := newOrchestrator(alipay.NewMockClient())

	err := orch.Execute(context.Background(), 99, decimal.RequireFromString("10.00"), "")
	if !errors.Is(err, domainErrors.ErrOrderNotFound) {
		t.Fatalf("expected order-not-found, got %v", err)
	}
}
