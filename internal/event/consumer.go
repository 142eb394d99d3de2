package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/tastybites/storefront/pkg/kafka"
)

// TopicOrderCreated is published by the order service when checkout succeeds.
var TopicOrderCreated = pkgkafka.Topic("order", "created")

// CartClearer empties every cart a user has.
type CartClearer interface {
	ClearUser(ctx context.Context, userID string) error
}

// orderCreatedPayload is the part of an order.created event the cart needs.
type orderCreatedPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// OrderConsumer clears a user's cart once their order has been placed.
type OrderConsumer struct {
	carts  CartClearer
	logger *slog.Logger
}

// NewOrderConsumer creates an order event handler.
func NewOrderConsumer(carts CartClearer, logger *slog.Logger) *OrderConsumer {
	return &OrderConsumer{
		carts:  carts,
		logger: logger,
	}
}

// Handle processes one order event. Events of other types are ignored.
func (c *OrderConsumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != TopicOrderCreated {
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var payload orderCreatedPayload
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("unmarshal order.created payload: %w", err)
	}
	if payload.UserID == "" {
		c.logger.WarnContext(ctx, "order.created event without user id",
			slog.String("event_id", event.EventID),
			slog.String("order_id", payload.OrderID),
		)
		return nil
	}

	if err := c.carts.ClearUser(ctx, payload.UserID); err != nil {
		return fmt.Errorf("clear cart for order %s: %w", payload.OrderID, err)
	}

	c.logger.InfoContext(ctx, "cleared cart after order",
		slog.String("order_id", payload.OrderID),
		slog.String("user_id", payload.UserID),
	)
	return nil
}

// NewKafkaOrderConsumer wires an OrderConsumer to a Kafka consumer group.
// Redelivered events are skipped through the idempotency store.
func NewKafkaOrderConsumer(brokers []string, group string, handler *OrderConsumer, store pkgkafka.IdempotencyStore, logger *slog.Logger) *pkgkafka.Consumer {
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    TopicOrderCreated,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, pkgkafka.IdempotentHandler(store, handler.Handle, logger), logger)
}
