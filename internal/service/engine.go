package service

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
)

// Validation messages reported per field.
const (
	MsgBlank             = "can't be blank"
	MsgNotInteger        = "must be an integer"
	MsgNotNumber         = "is not a number"
	MsgCurrencyMismatch  = "must match order currency"
	MsgQuantityShortfall = "selected quantity not available"
)

// Pricer prices a variant for a tax zone.
type Pricer interface {
	PriceIncludingVATFor(ctx context.Context, v *domain.Variant, zoneID string) (decimal.Decimal, error)
}

// StockChecker answers whether a quantity of a variant can be supplied.
type StockChecker interface {
	CanSupply(ctx context.Context, v *domain.Variant, quantity int) (bool, error)
}

// Inventory allocates and releases a line item's inventory units.
type Inventory interface {
	Verify(ctx context.Context, order *domain.Order, item *domain.LineItem, targetShipmentID string) error
	OnHandCount(ctx context.Context, lineItemID string) (int, error)
	DestroyUnits(ctx context.Context, lineItemID string) (int64, error)
}

// TaxAdjuster charges tax to line items.
type TaxAdjuster interface {
	AdjustTax(ctx context.Context, order *domain.Order, items []*domain.LineItem) error
}

// AdjustmentUpdater recalculates a line item's adjustments and totals.
type AdjustmentUpdater interface {
	UpdateAdjustments(ctx context.Context, item *domain.LineItem) error
}

// PriceOptions reprices a line item. Currency overrides the order currency;
// Modifiers selects option values whose price modifiers apply.
type PriceOptions struct {
	Currency  string
	Modifiers map[string]string
}

// IsEmpty reports whether no option is set.
func (o PriceOptions) IsEmpty() bool {
	return o.Currency == "" && len(o.Modifiers) == 0
}

// ConsistencyEngine keeps a line item's price, tax category, currency,
// inventory and adjustments consistent across create, update and destroy.
// Callers run it inside the transaction that persists the item.
type ConsistencyEngine struct {
	pricer      Pricer
	stock       StockChecker
	inventory   Inventory
	tax         TaxAdjuster
	adjustments AdjustmentUpdater
}

// NewConsistencyEngine creates a ConsistencyEngine.
func NewConsistencyEngine(pricer Pricer, stock StockChecker, inventory Inventory, tax TaxAdjuster, adjustments AdjustmentUpdater) *ConsistencyEngine {
	return &ConsistencyEngine{
		pricer:      pricer,
		stock:       stock,
		inventory:   inventory,
		tax:         tax,
		adjustments: adjustments,
	}
}

// InitializeDefaults clamps the quantity and fills any unset price, cost
// price, currency and tax category from the variant. Set values are kept.
func (e *ConsistencyEngine) InitializeDefaults(ctx context.Context, item *domain.LineItem, v *domain.Variant, zoneID string) error {
	item.NormalizeQuantity()
	if v == nil {
		return nil
	}

	item.Variant = v
	if item.VariantID == "" {
		item.VariantID = v.ID
	}
	if !item.Price.Valid {
		price, err := e.pricer.PriceIncludingVATFor(ctx, v, zoneID)
		if err != nil {
			return fmt.Errorf("price variant %s: %w", v.ID, err)
		}
		item.Price = decimal.NewNullDecimal(price)
	}
	if !item.CostPrice.Valid {
		item.CostPrice = v.CostPrice
	}
	if item.Currency == "" {
		item.Currency = v.Currency
	}
	if item.TaxCategoryID == "" {
		item.TaxCategoryID = v.TaxCategoryID
	}
	return nil
}

// Validate returns domain.ValidationErrors listing every failed rule, nil
// when the item may be saved, or a collaborator error.
func (e *ConsistencyEngine) Validate(ctx context.Context, item *domain.LineItem, order *domain.Order) error {
	var errs domain.ValidationErrors

	if item.Variant == nil {
		errs.Add("variant", domain.ErrMissingVariant, MsgBlank)
	}
	if item.Quantity < 0 {
		errs.Add("quantity", domain.ErrInvalidQuantity, MsgNotInteger)
	}
	if !item.Price.Valid {
		errs.Add("price", domain.ErrInvalidPrice, MsgNotNumber)
	}
	if order == nil || item.Currency != order.Currency {
		errs.Add("currency", domain.ErrCurrencyMismatch, MsgCurrencyMismatch)
	}

	if item.Variant != nil && item.Quantity > 0 {
		ok, err := e.hasStockFor(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			errs.Add("quantity", domain.ErrInsufficientStock, MsgQuantityShortfall)
		}
	}

	return errs.Err()
}

// hasStockFor checks the quantity not yet covered by on-hand units.
func (e *ConsistencyEngine) hasStockFor(ctx context.Context, item *domain.LineItem) (bool, error) {
	held := 0
	if item.IsPersisted() {
		n, err := e.inventory.OnHandCount(ctx, item.ID)
		if err != nil {
			return false, err
		}
		held = n
	}

	needed := item.Quantity - held
	if needed <= 0 {
		return true, nil
	}
	return e.stock.CanSupply(ctx, item.Variant, needed)
}

// OnPersist runs after the item is written. Inventory is reverified when
// anything changed or a target shipment is set and the order checks out
// through delivery; tax and adjustments are recomputed when the quantity
// changed.
func (e *ConsistencyEngine) OnPersist(ctx context.Context, item *domain.LineItem, order *domain.Order, changes domain.ChangeSet) error {
	if (changes.Any || item.TargetShipmentID != "") && order.HasCheckoutStep(domain.CheckoutStepDelivery) {
		if err := e.inventory.Verify(ctx, order, item, item.TargetShipmentID); err != nil {
			return err
		}
	}

	if changes.Quantity {
		if err := e.tax.AdjustTax(ctx, order, []*domain.LineItem{item}); err != nil {
			return err
		}
		if err := e.adjustments.UpdateAdjustments(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// OnCreate charges the order's tax to a newly written item.
func (e *ConsistencyEngine) OnCreate(ctx context.Context, item *domain.LineItem, order *domain.Order) error {
	return e.tax.AdjustTax(ctx, order, []*domain.LineItem{item})
}

// OnDestroy releases the item's allocation and removes all of its inventory
// units. It returns how many units were removed in the final sweep.
func (e *ConsistencyEngine) OnDestroy(ctx context.Context, item *domain.LineItem, order *domain.Order) (int64, error) {
	released := *item
	released.Quantity = 0
	if err := e.inventory.Verify(ctx, order, &released, item.TargetShipmentID); err != nil {
		return 0, err
	}
	return e.inventory.DestroyUnits(ctx, item.ID)
}

// ApplyPriceOptions reprices the item as the variant's price in the resolved
// currency plus the selected modifiers, and records the selections. The
// currency is the override, else the order's. Without either the variant's
// own price and currency apply. Empty options change nothing.
func (e *ConsistencyEngine) ApplyPriceOptions(_ context.Context, item *domain.LineItem, order *domain.Order, opts PriceOptions) error {
	if opts.IsEmpty() {
		return nil
	}
	v := item.Variant
	if v == nil {
		var errs domain.ValidationErrors
		errs.Add("variant", domain.ErrMissingVariant, MsgBlank)
		return errs.Err()
	}

	currency := opts.Currency
	if currency == "" && order != nil {
		currency = order.Currency
	}

	base := domain.Price{VariantID: v.ID, Currency: v.Currency, Amount: decimal.NewNullDecimal(v.Price)}
	if currency != "" {
		base = v.PriceIn(currency)
	}
	if err := base.Validate(); err != nil {
		return catalogPriceError(err)
	}

	if currency != "" {
		item.Currency = currency
		if base.Amount.Valid {
			item.Price = decimal.NewNullDecimal(base.Amount.Decimal.Add(v.PriceModifierAmountIn(currency, opts.Modifiers)))
		} else {
			item.Price = decimal.NullDecimal{}
		}
	} else {
		item.Price = decimal.NewNullDecimal(base.Amount.Decimal.Add(v.PriceModifierAmount(opts.Modifiers)))
	}

	if len(opts.Modifiers) > 0 {
		if item.SelectedOptions == nil {
			item.SelectedOptions = make(map[string]string, len(opts.Modifiers))
		}
		maps.Copy(item.SelectedOptions, opts.Modifiers)
	}
	return nil
}

// catalogPriceError reports an out-of-range catalog price against the item's
// price field.
func catalogPriceError(err error) error {
	var invalid domain.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}
	var errs domain.ValidationErrors
	for _, fe := range invalid {
		errs.Add("price", fe.Kind, fe.Message)
	}
	return errs.Err()
}

// SufficientStock reports whether the item's full quantity can be supplied.
// It is informational and does not block saves.
func (e *ConsistencyEngine) SufficientStock(ctx context.Context, item *domain.LineItem) (bool, error) {
	if item.Variant == nil {
		return false, nil
	}
	return e.stock.CanSupply(ctx, item.Variant, item.Quantity)
}

// InsufficientStock is the negation of SufficientStock.
func (e *ConsistencyEngine) InsufficientStock(ctx context.Context, item *domain.LineItem) (bool, error) {
	ok, err := e.SufficientStock(ctx, item)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
