package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/alipay-bridge/internal/application/notification"
	"github.com/redis/go-redis/v9"
)

const (
	// AlertStream carries operator alerts (orphan transactions, auto-refund
	// results). Consumed by the notification relay, not by this service.
	AlertStream = "alerts:operator"
	// OrderEventStream carries order lifecycle events for downstream systems.
	OrderEventStream = "orders:events"
)

// StreamPublisher writes alerts and order events to Redis streams.
type StreamPublisher struct {
	client *redis.Client
}

func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{client: client}
}

// OrphanTransaction publishes an operator alert for a payment with no
// resolvable order.
func (p *StreamPublisher) OrphanTransaction(ctx context.Context, alert notification.OrphanAlert) error {
	args := &redis.XAddArgs{
		Stream: AlertStream,
		Values: map[string]any{
			"category":     alert.Category,
			"order_id":     alert.OrderID,
			"out_trade_no": alert.OutTradeNo,
			"trade_no":     alert.TradeNo,
			"timestamp":    time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish operator alert: %w", err)
	}
	return nil
}

// OrderCancelled publishes a cancellation event from the timeout sweep.
func (p *StreamPublisher) OrderCancelled(ctx context.Context, orderID int64, reason string) error {
	args := &redis.XAddArgs{
		Stream: OrderEventStream,
		Values: map[string]any{
			"event_type": "order.cancelled",
			"order_id":   orderID,
			"reason":     reason,
			"timestamp":  time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}
