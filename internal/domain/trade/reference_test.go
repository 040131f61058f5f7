package trade_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/cassiomorais/alipay-bridge/internal/domain/trade"
	"github.com/cassiomorais/alipay-bridge/internal/testutil"
)

func TestNewOrderReference(t *testing.T) {
	now := time.Unix(1700000000, 0)

	if got := trade.NewOrderReference(42, now); got != "WooA42-1700000000" {
		t.Errorf("got %q", got)
	}
	if got := trade.NewRenewalReference(42, now); got != "SubR42-1700000000" {
		t.Errorf("got %q", got)
	}
	if got := trade.NewAgreementReference(42, now); got != "AGREE42-1700000000" {
		t.Errorf("got %q", got)
	}
}

func TestParseOrderID(t *testing.T) {
	tests := []struct {
		ref string
		id  int64
		ok  bool
	}{
		{"WooA42-1700000000", 42, true},
		{"WooA1-0", 1, true},
		{"SubR42-1700000000", 0, false}, // renewal ids resolve via the index
		{"AGREE42-1700000000", 0, false},
		{"WooA-1700000000", 0, false},
		{"WooA42", 0, false},
		{"WooA0-1700000000", 0, false},
		{"WooAx-1700000000", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		id, ok := trade.ParseOrderID(tt.ref)
		if id != tt.id || ok != tt.ok {
			t.Errorf("ParseOrderID(%q) = (%d, %v), want (%d, %v)", tt.ref, id, ok, tt.id, tt.ok)
		}
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	// Any id the platform can issue must survive the encode/parse round
	// trip.
	now := time.Now()
	for _, id := range []int64{1, 42, 999999, 1<<31 + 7} {
		ref := trade.NewOrderReference(id, now)
		got, ok := trade.ParseOrderID(ref)
		if !ok || got != id {
			t.Errorf("round trip for %d gave (%d, %v)", id, got, ok)
		}
	}
}

func TestNewRefundRequestNo(t *testing.T) {
	now := time.Unix(1700000000, 0)

	no := trade.NewRefundRequestNo("shop1", 42, now)
	if len(no) != 64 {
		t.Fatalf("expected width 64, got %d", len(no))
	}
	if !strings.HasSuffix(no, "shop1-42-1700000000") {
		t.Errorf("expected payload suffix, got %q", no)
	}
	if !strings.HasPrefix(no, "0") {
		t.Errorf("expected zero padding, got %q", no)
	}

	// Without a site id the key still reaches the fixed width.
	no = trade.NewRefundRequestNo("", 42, now)
	if len(no) != 64 || !strings.HasSuffix(no, "42-1700000000") {
		t.Errorf("got %q", no)
	}
}

func TestResolver_PositionalParse(t *testing.T) {
	o := testutil.NewPendingOrder(42, "10.00", "")
	store := testutil.NewMockOrderStore(o)
	r := trade.NewResolver(store)

	got, err := r.Resolve(context.Background(), "WooA42-1700000000")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != 42 {
		t.Errorf("resolved order %d, want 42", got.ID)
	}
}

func TestResolver_MetadataIndexFallback(t *testing.T) {
	// Renewal references carry no positional id; only the stored metadata
	// can resolve them.
	o := testutil.NewPendingOrder(42, "10.00", "SubR42-1700000000")
	store := testutil.NewMockOrderStore(o)
	r := trade.NewResolver(store)

	got, err := r.Resolve(context.Background(), "SubR42-1700000000")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != 42 {
		t.Errorf("resolved order %d, want 42", got.ID)
	}
}

func TestResolver_PositionalMissFallsThrough(t *testing.T) {
	// The positional id points at a deleted order, but another order holds
	// the reference in its metadata.
	o := testutil.NewPendingOrder(7, "10.00", "WooA42-1700000000")
	store := testutil.NewMockOrderStore(o)
	r := trade.NewResolver(store)

	got, err := r.Resolve(context.Background(), "WooA42-1700000000")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != 7 {
		t.Errorf("resolved order %d, want 7", got.ID)
	}
}

func TestResolver_Unknown(t *testing.T) {
	store := testutil.NewMockOrderStore()
	r := trade.NewResolver(store)

	_, err := r.Resolve(context.Background(), "WooA42-1700000000")
	if !errors.Is(err, domainErrors.ErrOrderNotFound) {
		t.Fatalf("expected order-not-found, got %v", err)
	}
}

func TestResolver_StoreErrorSurfaces(t *testing.T) {
	// A store outage during the positional lookup must not fall through to
	// the metadata index, where the miss would masquerade as a missing
	// order.
	boom := errors.New("connection refused")
	store := testutil.NewMockOrderStore()
	store.GetFunc = func(ctx context.Context, id int64) (*order.Order, error) {
		return nil, boom
	}
	r := trade.NewResolver(store)

	_, err := r.Resolve(context.Background(), "WooA42-1700000000")
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error surfaced, got %v", err)
	}
}
