package webhookretry_test

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/webhookretry"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/cassiomorais/alipay-bridge/internal/testutil"
	"github.com/rs/zerolog"
)

type mockTxRunner struct {
	Calls int
}

func (m *mockTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Calls++
	return fn(ctx)
}

func TestRecord_InsertsNewEntry(t *testing.T) {
	repo := testutil.NewMockWebhookLogRepository()
	log := webhookretry.NewLog(repo, nil, zerolog.Nop())

	if err := log.Record(context.Background(), "WooA1-1700000000", 1, "t1", "payload"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries := repo.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.OrderID != 1 || e.OutTradeNo != "WooA1-1700000000" || e.Status != webhooklog.StatusPending {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestRecord_RedeliveryWithinWindowRefreshes(t *testing.T) {
	repo := testutil.NewMockWebhookLogRepository()
	log := webhookretry.NewLog(repo, nil, zerolog.Nop())
	ctx := context.Background()

	if err := log.Record(ctx, "WooA1-1700000000", 1, "", "first"); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := log.Record(ctx, "WooA1-1700000000", 1, "t1", "second"); err != nil {
		t.Fatalf("second record: %v", err)
	}

	entries := repo.All()
	if len(entries) != 1 {
		t.Fatalf("redelivery within the window must not insert, got %d entries", len(entries))
	}
	if entries[0].RequestData != "second" || entries[0].TradeNo != "t1" {
		t.Errorf("expected refreshed payload, got %+v", entries[0])
	}
}

func TestRecord_OldEntryOutsideWindowGetsNewRow(t *testing.T) {
	repo := testutil.NewMockWebhookLogRepository()
	log := webhookretry.NewLog(repo, nil, zerolog.Nop())
	ctx := context.Background()

	stale := webhooklog.NewEntry(1, "WooA1-1700000000", "", "old")
	stale.CreatedAt = time.Now().Add(-webhooklog.DedupeWindow - time.Minute)
	if err := repo.Insert(ctx, stale); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	if err := log.Record(ctx, "WooA1-1700000000", 1, "", "new"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if got := len(repo.All()); got != 2 {
		t.Fatalf("expected a fresh row past the dedupe window, got %d entries", got)
	}
}

func TestRecord_RunsInsideTransactionWhenConfigured(t *testing.T) {
	repo := testutil.NewMockWebhookLogRepository()
	tx := &mockTxRunner{}
	log := webhookretry.NewLog(repo, tx, zerolog.Nop())

	if err := log.Record(context.Background(), "WooA1-1700000000", 1, "", "payload"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if tx.Calls != 1 {
		t.Errorf("expected one transaction, got %d", tx.Calls)
	}
	if len(repo.All()) != 1 {
		t.Errorf("expected entry written through the transaction")
	}
}

func TestMark_DelegatesToRepository(t *testing.T) {
	repo := testutil.NewMockWebhookLogRepository()
	log := webhookretry.NewLog(repo, nil, zerolog.Nop())
	ctx := context.Background()

	if err := log.Record(ctx, "WooA1-1700000000", 1, "", "payload"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := log.Mark(ctx, "WooA1-1700000000", webhooklog.StatusFailed, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	e := repo.All()[0]
	if e.Status != webhooklog.StatusFailed || e.LastError != "boom" || e.RetryCount != 1 {
		t.Errorf("unexpected entry after mark: %+v", e)
	}
}
