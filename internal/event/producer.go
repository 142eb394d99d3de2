package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tastybites/storefront/internal/cartstore"
	"github.com/tastybites/storefront/internal/domain"
	pkgkafka "github.com/tastybites/storefront/pkg/kafka"
	"github.com/tastybites/storefront/pkg/logger"
)

// Kafka topics for cart events.
var (
	TopicCartSynced = pkgkafka.Topic("cart", "synced")
	TopicCartMerged = pkgkafka.Topic("cart", "merged")
)

// AggregateTypeCart is the aggregate type of cart events.
const AggregateTypeCart = "cart"

// SourceCartService identifies events published by this service.
const SourceCartService = "cart-service"

// CartSyncedData is the payload of a cart.synced event.
type CartSyncedData struct {
	UserID      string            `json:"user_id"`
	Items       []domain.CartItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalAmount float64           `json:"total_amount"`
}

// CartMergedData is the payload of a cart.merged event.
type CartMergedData struct {
	UserID      string            `json:"user_id"`
	GuestLines  int               `json:"guest_lines"`
	Items       []domain.CartItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalAmount float64           `json:"total_amount"`
}

// Producer publishes cart events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

var _ cartstore.EventPublisher = (*Producer)(nil)

// NewProducer creates a cart event producer.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartSynced publishes a cart.synced event after a successful remote save.
func (p *Producer) PublishCartSynced(ctx context.Context, userID string, items []domain.CartItem) error {
	data := CartSyncedData{
		UserID:      userID,
		Items:       items,
		ItemCount:   domain.ItemCount(items),
		TotalAmount: domain.TotalAmount(items),
	}
	return p.publish(ctx, TopicCartSynced, userID, data)
}

// PublishCartMerged publishes a cart.merged event after a guest cart was
// folded into an account cart.
func (p *Producer) PublishCartMerged(ctx context.Context, userID string, guestLines int, items []domain.CartItem) error {
	data := CartMergedData{
		UserID:      userID,
		GuestLines:  guestLines,
		Items:       items,
		ItemCount:   domain.ItemCount(items),
		TotalAmount: domain.TotalAmount(items),
	}
	return p.publish(ctx, TopicCartMerged, userID, data)
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if id := logger.SessionIDFromContext(ctx); id != "" {
		event.WithSessionID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published cart event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}
