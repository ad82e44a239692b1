package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
)

// LineItemRepository defines persistence operations for line items.
type LineItemRepository interface {
	// Create inserts a new line item.
	Create(ctx context.Context, item *domain.LineItem) error

	// GetByID retrieves a line item by its identifier.
	GetByID(ctx context.Context, id string) (*domain.LineItem, error)

	// ListByOrder returns the order's line items oldest first.
	ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error)

	// Update writes quantity, prices, currency, tax category and options.
	Update(ctx context.Context, item *domain.LineItem) error

	// UpdateTotals writes the adjustment-derived totals and pre-tax amount.
	UpdateTotals(ctx context.Context, item *domain.LineItem) error

	// Delete removes a line item.
	Delete(ctx context.Context, id string) error
}

// OrderRepository reads the order fields line items depend on.
type OrderRepository interface {
	// GetByID retrieves an order with its shipments.
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// InventoryUnitRepository persists inventory allocations.
type InventoryUnitRepository interface {
	ListByLineItem(ctx context.Context, lineItemID string) ([]domain.InventoryUnit, error)
	CountOnHand(ctx context.Context, lineItemID string) (int, error)
	CreateBatch(ctx context.Context, units []domain.InventoryUnit) error
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByLineItem(ctx context.Context, lineItemID string) (int64, error)
}

// AdjustmentRepository persists line item adjustments.
type AdjustmentRepository interface {
	ListByAdjustable(ctx context.Context, adjustableID string) ([]domain.Adjustment, error)
	Create(ctx context.Context, adj *domain.Adjustment) error
	UpdateAmount(ctx context.Context, id string, amount decimal.Decimal, eligible bool) error
	DeleteTaxByAdjustable(ctx context.Context, adjustableID string) error
	DeleteByAdjustable(ctx context.Context, adjustableID string) error
}

// TaxRateRepository reads tax rates.
type TaxRateRepository interface {
	// ListByZone returns every rate defined for zoneID.
	ListByZone(ctx context.Context, zoneID string) ([]domain.TaxRate, error)

	// IncludedRateFor sums the price-included rates for a zone and category.
	IncludedRateFor(ctx context.Context, zoneID, taxCategoryID string) (decimal.Decimal, error)
}

// PromotionActionRepository reads promotion actions.
type PromotionActionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.PromotionAction, error)
}

// VariantCache caches catalog variants. Get returns (nil, nil) on a miss.
type VariantCache interface {
	Get(ctx context.Context, id string) (*domain.Variant, error)
	Set(ctx context.Context, v *domain.Variant) error
	InvalidateVariant(ctx context.Context, id string) error
	InvalidateProduct(ctx context.Context, productID string) error
}

// Repositories bundles the repositories bound to one unit of work.
type Repositories struct {
	LineItems      LineItemRepository
	Orders         OrderRepository
	InventoryUnits InventoryUnitRepository
	Adjustments    AdjustmentRepository
	TaxRates       TaxRateRepository
	Promotions     PromotionActionRepository
}

// Transactor runs fn with repositories sharing one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store exposes repositories outside a transaction alongside WithinTx.
type Store interface {
	Transactor
	Repositories() Repositories
}
