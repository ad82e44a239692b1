package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/prakyath/spree-commerse/pkg/kafka"
)

// Kafka topics consumed from the catalog.
const (
	TopicProductUpdated = "ecommerce.product.updated"
	TopicProductDeleted = "ecommerce.product.deleted"
	TopicVariantUpdated = "ecommerce.variant.updated"
)

// ConsumedTopics lists every topic the consumer handles.
var ConsumedTopics = []string{TopicProductUpdated, TopicProductDeleted, TopicVariantUpdated}

// VariantEvictor drops cached catalog data.
type VariantEvictor interface {
	InvalidateVariant(ctx context.Context, id string) error
	InvalidateProduct(ctx context.Context, productID string) error
}

// ProductChangedData is the part of a product event the consumer reads.
type ProductChangedData struct {
	ID string `json:"id"`
}

// VariantUpdatedData is the part of a variant.updated event the consumer reads.
type VariantUpdatedData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
}

// Consumer evicts cached variants when the catalog changes so new line items
// are priced from fresh data.
type Consumer struct {
	cache  VariantEvictor
	logger *slog.Logger
}

// NewConsumer creates a new catalog event consumer.
func NewConsumer(cache VariantEvictor, logger *slog.Logger) *Consumer {
	return &Consumer{cache: cache, logger: logger}
}

// Handle dispatches an event by type. Unknown types are ignored.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductUpdated, TopicProductDeleted:
		return c.HandleProductChanged(ctx, event)
	case TopicVariantUpdated:
		return c.HandleVariantUpdated(ctx, event)
	default:
		c.logger.DebugContext(ctx, "ignoring event",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// HandleProductChanged evicts every cached variant of the product.
func (c *Consumer) HandleProductChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductChangedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	productID := data.ID
	if productID == "" {
		productID = event.AggregateID
	}

	if err := c.cache.InvalidateProduct(ctx, productID); err != nil {
		return fmt.Errorf("evict variants of product %s: %w", productID, err)
	}

	c.logger.InfoContext(ctx, "evicted cached variants for product",
		slog.String("event_type", event.EventType),
		slog.String("product_id", productID),
	)
	return nil
}

// HandleVariantUpdated evicts the variant.
func (c *Consumer) HandleVariantUpdated(ctx context.Context, event *pkgkafka.Event) error {
	var data VariantUpdatedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	variantID := data.ID
	if variantID == "" {
		variantID = event.AggregateID
	}

	if err := c.cache.InvalidateVariant(ctx, variantID); err != nil {
		return fmt.Errorf("evict variant %s: %w", variantID, err)
	}

	c.logger.InfoContext(ctx, "evicted cached variant",
		slog.String("variant_id", variantID),
		slog.String("product_id", data.ProductID),
	)
	return nil
}
