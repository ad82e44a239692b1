package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	pkgkafka "github.com/prakyath/spree-commerse/pkg/kafka"
	"github.com/prakyath/spree-commerse/pkg/logger"
)

// Kafka topics for line item events.
const (
	TopicLineItemCreated = "ecommerce.line_item.created"
	TopicLineItemUpdated = "ecommerce.line_item.updated"
	TopicLineItemDeleted = "ecommerce.line_item.deleted"
)

// AggregateTypeLineItem is the aggregate type of line item events.
const AggregateTypeLineItem = "line_item"

// SourceLineItemService identifies events originating from this service.
const SourceLineItemService = "line-item-service"

// LineItemData is the payload of line item events.
type LineItemData struct {
	ID                 string              `json:"id"`
	OrderID            string              `json:"order_id"`
	VariantID          string              `json:"variant_id"`
	Quantity           int                 `json:"quantity"`
	Price              decimal.NullDecimal `json:"price"`
	Currency           string              `json:"currency"`
	Amount             decimal.Decimal     `json:"amount"`
	PromoTotal         decimal.Decimal     `json:"promo_total"`
	AdjustmentTotal    decimal.Decimal     `json:"adjustment_total"`
	IncludedTaxTotal   decimal.Decimal     `json:"included_tax_total"`
	AdditionalTaxTotal decimal.Decimal     `json:"additional_tax_total"`
	FinalAmount        decimal.Decimal     `json:"final_amount"`
}

// LineItemDeletedData is the payload of a line_item.deleted event.
type LineItemDeletedData struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	VariantID      string `json:"variant_id"`
	DestroyedUnits int64  `json:"destroyed_units"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes line item domain events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func newLineItemData(item *domain.LineItem) LineItemData {
	return LineItemData{
		ID:                 item.ID,
		OrderID:            item.OrderID,
		VariantID:          item.VariantID,
		Quantity:           item.Quantity,
		Price:              item.Price,
		Currency:           item.Currency,
		Amount:             item.Amount(),
		PromoTotal:         item.PromoTotal,
		AdjustmentTotal:    item.AdjustmentTotal,
		IncludedTaxTotal:   item.IncludedTaxTotal,
		AdditionalTaxTotal: item.AdditionalTaxTotal,
		FinalAmount:        item.FinalAmount(),
	}
}

// PublishLineItemCreated publishes a line_item.created event.
func (p *Producer) PublishLineItemCreated(ctx context.Context, item *domain.LineItem) error {
	return p.publish(ctx, TopicLineItemCreated, item.ID, newLineItemData(item))
}

// PublishLineItemUpdated publishes a line_item.updated event.
func (p *Producer) PublishLineItemUpdated(ctx context.Context, item *domain.LineItem) error {
	return p.publish(ctx, TopicLineItemUpdated, item.ID, newLineItemData(item))
}

// PublishLineItemDeleted publishes a line_item.deleted event.
func (p *Producer) PublishLineItemDeleted(ctx context.Context, item *domain.LineItem, destroyedUnits int64) error {
	return p.publish(ctx, TopicLineItemDeleted, item.ID, LineItemDeletedData{
		ID:             item.ID,
		OrderID:        item.OrderID,
		VariantID:      item.VariantID,
		DestroyedUnits: destroyedUnits,
	})
}

func (p *Producer) publish(ctx context.Context, topic, lineItemID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, lineItemID, AggregateTypeLineItem, SourceLineItemService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published line item event",
		slog.String("topic", topic),
		slog.String("line_item_id", lineItemID),
	)
	return nil
}
