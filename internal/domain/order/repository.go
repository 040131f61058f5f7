package order

import (
	"context"
	"time"
)

// SweepFilter selects orders for the batch sweeps.
type SweepFilter struct {
	Statuses      []Status
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
	OldestFirst   bool
}

// Store is the port onto the commerce platform's order records.
type Store interface {
	// Get retrieves an order by its local id.
	Get(ctx context.Context, id int64) (*Order, error)
	// FindByTradeReference looks an order up via the stored merchant trade
	// reference metadata. Needed for references that do not embed the order
	// id positionally.
	FindByTradeReference(ctx context.Context, ref string) (*Order, error)
	// ListAwaitingPayment lists orders paid through this gateway matching
	// the sweep filter.
	ListAwaitingPayment(ctx context.Context, f SweepFilter) ([]*Order, error)
	// Update persists status, transaction id and metadata changes.
	Update(ctx context.Context, o *Order) error
	// AddNote appends an audit note to the order's history.
	AddNote(ctx context.Context, id int64, note string) error
}
