package webhooklog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter selects entries for the admin listing.
type ListFilter struct {
	Status Status // empty means all
	Limit  int
	Offset int
}

// Repository persists webhook log entries.
type Repository interface {
	// Insert stores a new entry.
	Insert(ctx context.Context, e *Entry) error
	// RecentByReference returns the newest entry for the reference created
	// after the given instant, or nil if none.
	RecentByReference(ctx context.Context, outTradeNo string, since time.Time) (*Entry, error)
	// Refresh updates payload and transaction id of an entry in place.
	Refresh(ctx context.Context, id uuid.UUID, requestData, tradeNo string) error
	// Mark transitions an entry's status by reference. Transitioning to
	// failed increments the retry counter atomically.
	Mark(ctx context.Context, outTradeNo string, status Status, lastError string) error
	// GetByID retrieves an entry by id.
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// ListRetryable returns failed entries below the retry budget whose last
	// update is older than the cool-down, oldest first, bounded.
	ListRetryable(ctx context.Context, maxRetries int, updatedBefore time.Time, limit int) ([]*Entry, error)
	// List returns entries for the admin view.
	List(ctx context.Context, f ListFilter) ([]*Entry, error)
	// CountByStatus returns aggregate counts per status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
