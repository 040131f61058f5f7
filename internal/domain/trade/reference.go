package trade

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
)

// Merchant trade reference prefixes. The provider echoes these strings back
// verbatim, so the wire format is an external compatibility constraint.
const (
	PrefixOrder     = "WooA"  // one-off purchase
	PrefixRenewal   = "SubR"  // subscription renewal
	PrefixAgreement = "AGREE" // agreement signing
)

// refundRequestNoWidth is the fixed width of the zero-padded refund
// idempotency key.
const refundRequestNoWidth = 64

// NewOrderReference builds the merchant trade reference for a one-off
// payment attempt. A new attempt for the same order gets a new reference.
func NewOrderReference(orderID int64, now time.Time) string {
	return fmt.Sprintf("%s%d-%d", PrefixOrder, orderID, now.Unix())
}

// NewRenewalReference builds the reference for a subscription renewal charge.
func NewRenewalReference(orderID int64, now time.Time) string {
	return fmt.Sprintf("%s%d-%d", PrefixRenewal, orderID, now.Unix())
}

// NewAgreementReference builds the reference for an agreement signing flow.
func NewAgreementReference(orderID int64, now time.Time) string {
	return fmt.Sprintf("%s%d-%d", PrefixAgreement, orderID, now.Unix())
}

// ParseOrderID recovers the order id from a one-off reference. Only the
// one-off prefix embeds the id positionally; everything else resolves via
// the metadata index.
func ParseOrderID(ref string) (int64, bool) {
	if !strings.HasPrefix(ref, PrefixOrder) {
		return 0, false
	}
	rest := strings.TrimPrefix(ref, PrefixOrder)
	first, _, found := strings.Cut(rest, "-")
	if !found || first == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// NewRefundRequestNo derives the idempotency key for a single refund
// operation: site + order + timestamp, left-padded with zeros to a fixed
// width the provider accepts.
func NewRefundRequestNo(siteID string, orderID int64, now time.Time) string {
	raw := fmt.Sprintf("%d-%d", orderID, now.Unix())
	if siteID != "" {
		raw = siteID + "-" + raw
	}
	if pad := refundRequestNoWidth - len(raw); pad > 0 {
		raw = strings.Repeat("0", pad) + raw
	}
	return raw
}

// Resolver maps a merchant trade reference back to an order using the
// two-strategy rule: positional parse first, metadata index second. Neither
// strategy is assumed to work universally.
type Resolver struct {
	orders order.Store
}

// NewResolver creates a Resolver over the given order store.
func NewResolver(orders order.Store) *Resolver {
	return &Resolver{orders: orders}
}

// Resolve returns the order the reference correlates to. A missing order
// falls through from the positional parse to the metadata index; any other
// store error is surfaced as-is so callers never mistake an outage for an
// absent order.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*order.Order, error) {
	if id, ok := ParseOrderID(ref); ok {
		o, err := r.orders.Get(ctx, id)
		switch {
		case err == nil && o != nil:
			return o, nil
		case err != nil && !errors.Is(err, domainErrors.ErrOrderNotFound):
			return nil, err
		}
	}
	return r.orders.FindByTradeReference(ctx, ref)
}
