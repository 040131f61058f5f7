package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookLogRepository implements webhooklog.Repository using PostgreSQL.
type WebhookLogRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookLogRepository creates a new WebhookLogRepository.
func NewWebhookLogRepository(pool *pgxpool.Pool) *WebhookLogRepository {
	return &WebhookLogRepository{pool: pool}
}

func (r *WebhookLogRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Insert stores a new entry.
func (r *WebhookLogRepository) Insert(ctx context.Context, e *webhooklog.Entry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_logs
		 (id, order_id, out_trade_no, trade_no, request_data, status, retry_count, last_error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.OrderID, e.OutTradeNo, e.TradeNo, e.RequestData,
		string(e.Status), e.RetryCount, e.LastError, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

// RecentByReference returns the newest entry for the reference created after
// the given instant, or nil if none exists.
func (r *WebhookLogRepository) RecentByReference(ctx context.Context, outTradeNo string, since time.Time) (*webhooklog.Entry, error) {
	e, err := r.scanEntry(r.db(ctx).QueryRow(ctx,
		`SELECT id, order_id, out_trade_no, trade_no, request_data, status, retry_count, last_error, created_at, updated_at
		 FROM webhook_logs
		 WHERE out_trade_no = $1 AND created_at > $2
		 ORDER BY created_at DESC LIMIT 1`,
		outTradeNo, since,
	))
	if err != nil {
		if errors.Is(err, domainErrors.ErrWebhookLogNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Refresh updates the payload and transaction id of an entry in place.
func (r *WebhookLogRepository) Refresh(ctx context.Context, id uuid.UUID, requestData, tradeNo string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_logs SET request_data=$1, trade_no=$2, updated_at=NOW() WHERE id=$3`,
		requestData, tradeNo, id,
	)
	if err != nil {
		return fmt.Errorf("refresh webhook log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrWebhookLogNotFound
	}
	return nil
}

// Mark transitions the newest entry for the reference. Marking failed
// increments the retry counter in the same statement so concurrent sweeps
// cannot lose attempts.
func (r *WebhookLogRepository) Mark(ctx context.Context, outTradeNo string, status webhooklog.Status, lastError string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_logs SET
		  status=$2,
		  last_error=$3,
		  retry_count = retry_count + CASE WHEN $2 = 'failed' THEN 1 ELSE 0 END,
		  updated_at=NOW()
		 WHERE id = (
		   SELECT id FROM webhook_logs WHERE out_trade_no = $1
		   ORDER BY created_at DESC LIMIT 1
		 )`,
		outTradeNo, string(status), lastError,
	)
	if err != nil {
		return fmt.Errorf("mark webhook log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrWebhookLogNotFound
	}
	return nil
}

// GetByID retrieves an entry by id.
func (r *WebhookLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*webhooklog.Entry, error) {
	return r.scanEntry(r.db(ctx).QueryRow(ctx,
		`SELECT id, order_id, out_trade_no, trade_no, request_data, status, retry_count, last_error, created_at, updated_at
		 FROM webhook_logs WHERE id = $1`, id,
	))
}

// ListRetryable returns failed entries below the retry budget whose last
// update is older than the cool-down, oldest first.
func (r *WebhookLogRepository) ListRetryable(ctx context.Context, maxRetries int, updatedBefore time.Time, limit int) ([]*webhooklog.Entry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, order_id, out_trade_no, trade_no, request_data, status, retry_count, last_error, created_at, updated_at
		 FROM webhook_logs
		 WHERE status = 'failed' AND retry_count < $1 AND updated_at < $2
		 ORDER BY updated_at ASC LIMIT $3`,
		maxRetries, updatedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable webhook logs: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// List returns entries for the admin view, newest first.
func (r *WebhookLogRepository) List(ctx context.Context, f webhooklog.ListFilter) ([]*webhooklog.Entry, error) {
	query := `SELECT id, order_id, out_trade_no, trade_no, request_data, status, retry_count, last_error, created_at, updated_at
		 FROM webhook_logs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// CountByStatus returns aggregate counts per status.
func (r *WebhookLogRepository) CountByStatus(ctx context.Context) (map[webhooklog.Status]int, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM webhook_logs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count webhook logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[webhooklog.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan webhook log count: %w", err)
		}
		counts[webhooklog.Status(status)] = count
	}
	return counts, rows.Err()
}

// --- scanning helpers ---

func (r *WebhookLogRepository) scanEntry(s scanner) (*webhooklog.Entry, error) {
	e := &webhooklog.Entry{}
	var status string
	err := s.Scan(
		&e.ID, &e.OrderID, &e.OutTradeNo, &e.TradeNo, &e.RequestData,
		&status, &e.RetryCount, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrWebhookLogNotFound
		}
		return nil, fmt.Errorf("scan webhook log: %w", err)
	}
	e.Status = webhooklog.Status(status)
	return e, nil
}

func (r *WebhookLogRepository) collect(rows pgx.Rows) ([]*webhooklog.Entry, error) {
	var entries []*webhooklog.Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
