package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// paymentMethod scopes every sweep query to orders paid through this
// gateway. Other payment methods on the platform are none of our business.
const paymentMethod = "alipay"

// OrderRepository implements order.Store over the commerce platform's
// orders, order_meta and order_notes tables.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Get retrieves an order with its metadata.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT id, status, total::text, currency, transaction_id, created_at, updated_at
		 FROM orders WHERE id = $1 AND payment_method = $2`, id, paymentMethod))
	if err != nil {
		return nil, err
	}
	if err := r.loadMeta(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// FindByTradeReference resolves an order through the stored merchant trade
// reference metadata.
func (r *OrderRepository) FindByTradeReference(ctx context.Context, ref string) (*order.Order, error) {
	var id int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT order_id FROM order_meta WHERE meta_key = $1 AND meta_value = $2
		 ORDER BY order_id DESC LIMIT 1`,
		order.MetaTradeReference, ref,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order by trade reference: %w", err)
	}
	return r.Get(ctx, id)
}

// ListAwaitingPayment lists gateway orders matching the sweep filter.
func (r *OrderRepository) ListAwaitingPayment(ctx context.Context, f order.SweepFilter) ([]*order.Order, error) {
	query := `SELECT id, status, total::text, currency, transaction_id, created_at, updated_at
		 FROM orders WHERE payment_method = $1`
	args := []any{paymentMethod}
	argIdx := 2

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if !f.CreatedAfter.IsZero() {
		query += fmt.Sprintf(" AND created_at > $%d", argIdx)
		args = append(args, f.CreatedAfter)
		argIdx++
	}
	if !f.CreatedBefore.IsZero() {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, f.CreatedBefore)
		argIdx++
	}

	if f.OldestFirst {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := r.loadMeta(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Update persists status, transaction id and metadata. Callers needing
// atomicity with other writes wrap the call in TxManager.WithTransaction.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	o.UpdatedAt = time.Now()
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status=$1, transaction_id=$2, updated_at=$3
		 WHERE id=$4 AND payment_method=$5`,
		string(o.Status), o.TransactionID, o.UpdatedAt, o.ID, paymentMethod,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}

	for key, value := range o.Metadata {
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO order_meta (order_id, meta_key, meta_value)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
			o.ID, key, value,
		)
		if err != nil {
			return fmt.Errorf("upsert order meta %q: %w", key, err)
		}
	}
	return nil
}

// AddNote appends an audit note to the order history.
func (r *OrderRepository) AddNote(ctx context.Context, id int64, note string) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO order_notes (order_id, note, created_at) VALUES ($1, $2, NOW())`,
		id, note,
	)
	if err != nil {
		return fmt.Errorf("insert order note: %w", err)
	}
	return nil
}

// --- scanning helpers ---

func (r *OrderRepository) scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		status   string
		totalStr string
	)
	err := s.Scan(&o.ID, &status, &totalStr, &o.Currency, &o.TransactionID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}
	o.Total = total
	o.Status = order.Status(status)
	return o, nil
}

func (r *OrderRepository) loadMeta(ctx context.Context, o *order.Order) error {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT meta_key, meta_value FROM order_meta WHERE order_id = $1`, o.ID)
	if err != nil {
		return fmt.Errorf("load order meta: %w", err)
	}
	defer rows.Close()

	o.Metadata = make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan order meta: %w", err)
		}
		o.Metadata[key] = value
	}
	return rows.Err()
}
