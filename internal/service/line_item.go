package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/event"
	"github.com/prakyath/spree-commerse/internal/repository"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
	"github.com/prakyath/spree-commerse/pkg/logger"
	"github.com/prakyath/spree-commerse/pkg/tracing"
)

// VariantSource loads catalog variants.
type VariantSource interface {
	Variant(ctx context.Context, id string) (*domain.Variant, error)
}

// EngineFactory builds a ConsistencyEngine whose collaborators use repos.
type EngineFactory func(repos repository.Repositories) *ConsistencyEngine

// LineItemService creates, changes and destroys line items, running the
// consistency pipeline in one transaction per operation.
type LineItemService struct {
	store    repository.Store
	variants VariantSource
	engine   EngineFactory
	producer *event.Producer
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewLineItemService creates a new line item service.
func NewLineItemService(store repository.Store, variants VariantSource, engine EngineFactory, producer *event.Producer, logger *slog.Logger) *LineItemService {
	return &LineItemService{
		store:    store,
		variants: variants,
		engine:   engine,
		producer: producer,
		logger:   logger,
		tracer:   tracing.Tracer("line-item-service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateLineItemInput holds the parameters for adding a variant to an order.
// A nil or negative Quantity becomes zero; an unset Price and empty Currency
// are filled from the variant.
type CreateLineItemInput struct {
	OrderID          string
	VariantID        string
	Quantity         *int
	Price            decimal.NullDecimal
	Currency         string
	Options          PriceOptions
	TargetShipmentID string
}

// UpdateLineItemInput holds the parameters for changing a line item. Nil
// Quantity and empty Options leave those attributes alone.
type UpdateLineItemInput struct {
	Quantity         *int
	Options          PriceOptions
	TargetShipmentID string
}

// loadVariant returns nil for an unknown variant so validation can report it.
func (s *LineItemService) loadVariant(ctx context.Context, id string) (*domain.Variant, error) {
	if id == "" {
		return nil, nil
	}
	v, err := s.variants.Variant(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load variant %s: %w", id, err)
	}
	return v, nil
}

// Create adds a line item to an order.
func (s *LineItemService) Create(ctx context.Context, input CreateLineItemInput) (_ *domain.LineItem, err error) {
	ctx, finish := tracing.Start(ctx, s.tracer, "line_item.create",
		attribute.String("order.id", input.OrderID),
		attribute.String("variant.id", input.VariantID),
	)
	defer func() {
		recordOutcome("create", err)
		finish(err)
	}()
	ctx = logger.WithOrderID(ctx, input.OrderID)

	variant, err := s.loadVariant(ctx, input.VariantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item := &domain.LineItem{
		ID:               uuid.New().String(),
		OrderID:          input.OrderID,
		VariantID:        input.VariantID,
		Quantity:         domain.CoerceQuantity(input.Quantity),
		Price:            input.Price,
		Currency:         input.Currency,
		TargetShipmentID: input.TargetShipmentID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		order, err := repos.Orders.GetByID(ctx, input.OrderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		engine := s.engine(repos)

		if err := engine.InitializeDefaults(ctx, item, variant, item.TaxZoneID(order)); err != nil {
			return err
		}
		if err := engine.ApplyPriceOptions(ctx, item, order, input.Options); err != nil {
			return err
		}
		if err := engine.Validate(ctx, item, order); err != nil {
			return err
		}

		changes := item.PendingChanges()
		if err := repos.LineItems.Create(ctx, item); err != nil {
			return fmt.Errorf("create line item: %w", err)
		}
		if err := engine.OnCreate(ctx, item, order); err != nil {
			return err
		}
		return engine.OnPersist(ctx, item, order, changes)
	})
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishLineItemCreated(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish line_item.created event",
			slog.String("line_item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "line item created",
		slog.String("line_item_id", item.ID),
		slog.String("variant_id", item.VariantID),
		slog.Int("quantity", item.Quantity),
		slog.String("price", item.Price.Decimal.StringFixed(2)),
	)
	return item, nil
}

// UpdateQuantity sets a line item's quantity.
func (s *LineItemService) UpdateQuantity(ctx context.Context, id string, quantity *int, targetShipmentID string) (*domain.LineItem, error) {
	if quantity == nil {
		zero := 0
		quantity = &zero
	}
	return s.Update(ctx, id, UpdateLineItemInput{Quantity: quantity, TargetShipmentID: targetShipmentID})
}

// UpdateOptions reprices a line item from price options.
func (s *LineItemService) UpdateOptions(ctx context.Context, id string, opts PriceOptions) (*domain.LineItem, error) {
	return s.Update(ctx, id, UpdateLineItemInput{Options: opts})
}

// Update changes a line item's quantity and price options.
func (s *LineItemService) Update(ctx context.Context, id string, input UpdateLineItemInput) (_ *domain.LineItem, err error) {
	ctx, finish := tracing.Start(ctx, s.tracer, "line_item.update", attribute.String("line_item.id", id))
	defer func() {
		recordOutcome("update", err)
		finish(err)
	}()

	var item *domain.LineItem
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err = repos.LineItems.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get line item: %w", err)
		}
		order, err := repos.Orders.GetByID(ctx, item.OrderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		variant, err := s.loadVariant(ctx, item.VariantID)
		if err != nil {
			return err
		}
		engine := s.engine(repos)

		if input.Quantity != nil {
			item.Quantity = domain.CoerceQuantity(input.Quantity)
		}
		item.TargetShipmentID = input.TargetShipmentID

		if err := engine.InitializeDefaults(ctx, item, variant, item.TaxZoneID(order)); err != nil {
			return err
		}
		if err := engine.ApplyPriceOptions(ctx, item, order, input.Options); err != nil {
			return err
		}
		if err := engine.Validate(ctx, item, order); err != nil {
			return err
		}

		changes := item.PendingChanges()
		if changes.Any {
			item.UpdatedAt = s.now()
			if err := repos.LineItems.Update(ctx, item); err != nil {
				return fmt.Errorf("update line item: %w", err)
			}
		}
		return engine.OnPersist(ctx, item, order, changes)
	})
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishLineItemUpdated(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish line_item.updated event",
			slog.String("line_item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	logger.WithContext(logger.WithOrderID(ctx, item.OrderID), s.logger).InfoContext(ctx, "line item updated",
		slog.String("line_item_id", item.ID),
		slog.Int("quantity", item.Quantity),
		slog.String("price", item.Price.Decimal.StringFixed(2)),
	)
	return item, nil
}

// Destroy removes a line item with its inventory units and adjustments.
func (s *LineItemService) Destroy(ctx context.Context, id string) (err error) {
	ctx, finish := tracing.Start(ctx, s.tracer, "line_item.destroy", attribute.String("line_item.id", id))
	defer func() {
		recordOutcome("destroy", err)
		finish(err)
	}()

	var (
		item      *domain.LineItem
		destroyed int64
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err = repos.LineItems.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get line item: %w", err)
		}
		order, err := repos.Orders.GetByID(ctx, item.OrderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}

		destroyed, err = s.engine(repos).OnDestroy(ctx, item, order)
		if err != nil {
			return err
		}
		if err := repos.Adjustments.DeleteByAdjustable(ctx, item.ID); err != nil {
			return fmt.Errorf("delete adjustments: %w", err)
		}
		if err := repos.LineItems.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("delete line item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.producer.PublishLineItemDeleted(ctx, item, destroyed); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish line_item.deleted event",
			slog.String("line_item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	logger.WithContext(logger.WithOrderID(ctx, item.OrderID), s.logger).InfoContext(ctx, "line item destroyed",
		slog.String("line_item_id", item.ID),
		slog.Int64("destroyed_units", destroyed),
	)
	return nil
}

// Get retrieves a line item with its variant loaded when the catalog still
// knows it.
func (s *LineItemService) Get(ctx context.Context, id string) (*domain.LineItem, error) {
	item, err := s.store.Repositories().LineItems.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get line item by id: %w", err)
	}
	item.Variant, err = s.loadVariant(ctx, item.VariantID)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListByOrder returns the order's line items.
func (s *LineItemService) ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	items, err := s.store.Repositories().LineItems.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	return items, nil
}

// CheckStock reports whether the line item's quantity can be supplied.
func (s *LineItemService) CheckStock(ctx context.Context, item *domain.LineItem) (bool, error) {
	return s.engine(s.store.Repositories()).SufficientStock(ctx, item)
}
