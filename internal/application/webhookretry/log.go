package webhookretry

import (
	"context"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/rs/zerolog"
)

// TxRunner runs a function atomically against the store.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Log is the durability log over the webhook repository. It implements the
// notification package's Recorder port.
type Log struct {
	repo   webhooklog.Repository
	tx     TxRunner
	logger zerolog.Logger
}

// NewLog creates a Log. tx may be nil; without it the dedupe check and the
// write are not atomic under concurrent redelivery.
func NewLog(repo webhooklog.Repository, tx TxRunner, logger zerolog.Logger) *Log {
	return &Log{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "webhook_log").Logger(),
	}
}

// Record upserts the attempt: a notification for a reference seen within
// the dedupe window refreshes the existing entry instead of inserting a
// duplicate.
func (l *Log) Record(ctx context.Context, outTradeNo string, orderID int64, tradeNo, payload string) error {
	if l.tx == nil {
		return l.record(ctx, outTradeNo, orderID, tradeNo, payload)
	}
	return l.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return l.record(txCtx, outTradeNo, orderID, tradeNo, payload)
	})
}

func (l *Log) record(ctx context.Context, outTradeNo string, orderID int64, tradeNo, payload string) error {
	since := time.Now().Add(-webhooklog.DedupeWindow)
	existing, err := l.repo.RecentByReference(ctx, outTradeNo, since)
	if err != nil {
		return err
	}
	if existing != nil {
		return l.repo.Refresh(ctx, existing.ID, payload, tradeNo)
	}
	return l.repo.Insert(ctx, webhooklog.NewEntry(orderID, outTradeNo, tradeNo, payload))
}

// Mark transitions the entry's status; failing increments the retry count.
func (l *Log) Mark(ctx context.Context, outTradeNo string, status webhooklog.Status, lastError string) error {
	return l.repo.Mark(ctx, outTradeNo, status, lastError)
}
