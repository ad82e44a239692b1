package domain

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one variant at a quantity and price within an order.
type LineItem struct {
	ID                 string              `json:"id"`
	OrderID            string              `json:"order_id"`
	VariantID          string              `json:"variant_id"`
	TaxCategoryID      string              `json:"tax_category_id,omitempty"`
	Quantity           int                 `json:"quantity"`
	Price              decimal.NullDecimal `json:"price"`
	CostPrice          decimal.NullDecimal `json:"cost_price"`
	Currency           string              `json:"currency"`
	PromoTotal         decimal.Decimal     `json:"promo_total"`
	AdjustmentTotal    decimal.Decimal     `json:"adjustment_total"`
	IncludedTaxTotal   decimal.Decimal     `json:"included_tax_total"`
	AdditionalTaxTotal decimal.Decimal     `json:"additional_tax_total"`
	PreTaxAmount       decimal.Decimal     `json:"pre_tax_amount"`
	SelectedOptions    map[string]string   `json:"selected_options,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`

	// Variant is loaded by the service and is not persisted.
	Variant *Variant `json:"-"`
	// TargetShipmentID, when set, directs inventory allocation to one shipment.
	TargetShipmentID string `json:"-"`

	persisted *lineItemSnapshot
}

type lineItemSnapshot struct {
	quantity      int
	price         decimal.NullDecimal
	costPrice     decimal.NullDecimal
	currency      string
	taxCategoryID string
	options       map[string]string
}

// CoerceQuantity maps a missing or negative quantity to zero.
func CoerceQuantity(q *int) int {
	if q == nil || *q < 0 {
		return 0
	}
	return *q
}

// NormalizeQuantity clamps a negative quantity to zero.
func (li *LineItem) NormalizeQuantity() {
	if li.Quantity < 0 {
		li.Quantity = 0
	}
}

func (li *LineItem) priceOrZero() decimal.Decimal {
	if !li.Price.Valid {
		return decimal.Zero
	}
	return li.Price.Decimal
}

// Amount is price times quantity. An unset price counts as zero.
func (li *LineItem) Amount() decimal.Decimal {
	return li.priceOrZero().Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Subtotal is an alias for Amount.
func (li *LineItem) Subtotal() decimal.Decimal { return li.Amount() }

// DiscountedAmount is the amount after promotions.
func (li *LineItem) DiscountedAmount() decimal.Decimal {
	return li.Amount().Add(li.PromoTotal)
}

// FinalAmount is the amount after all adjustments.
func (li *LineItem) FinalAmount() decimal.Decimal {
	return li.Amount().Add(li.AdjustmentTotal)
}

// Total is an alias for FinalAmount.
func (li *LineItem) Total() decimal.Decimal { return li.FinalAmount() }

func (li *LineItem) Name() string {
	if li.Variant == nil {
		return ""
	}
	return li.Variant.Name
}

func (li *LineItem) Description() string {
	if li.Variant == nil {
		return ""
	}
	return li.Variant.Description
}

func (li *LineItem) SKU() string {
	if li.Variant == nil {
		return ""
	}
	return li.Variant.SKU
}

func (li *LineItem) ProductID() string {
	if li.Variant == nil {
		return ""
	}
	return li.Variant.ProductID
}

// ShouldTrackInventory reports whether the loaded variant tracks stock.
func (li *LineItem) ShouldTrackInventory() bool {
	return li.Variant != nil && li.Variant.TrackInventory
}

// TaxZoneID returns the tax zone the item is priced in, which is the order's.
func (li *LineItem) TaxZoneID(order *Order) string {
	if order == nil {
		return ""
	}
	return order.TaxZoneID
}

// MarkPersisted records the current state as the stored baseline.
func (li *LineItem) MarkPersisted() {
	li.persisted = &lineItemSnapshot{
		quantity:      li.Quantity,
		price:         li.Price,
		costPrice:     li.CostPrice,
		currency:      li.Currency,
		taxCategoryID: li.TaxCategoryID,
		options:       maps.Clone(li.SelectedOptions),
	}
}

// IsPersisted reports whether the item has been stored.
func (li *LineItem) IsPersisted() bool {
	return li.persisted != nil
}

// Changed reports whether any persisted attribute differs from the baseline.
// An item that was never persisted is always changed.
func (li *LineItem) Changed() bool {
	s := li.persisted
	if s == nil {
		return true
	}
	return s.quantity != li.Quantity ||
		!nullEqual(s.price, li.Price) ||
		!nullEqual(s.costPrice, li.CostPrice) ||
		s.currency != li.Currency ||
		s.taxCategoryID != li.TaxCategoryID ||
		!maps.Equal(s.options, li.SelectedOptions)
}

// ChangeSet records which attributes a save is about to write.
type ChangeSet struct {
	Any      bool
	Quantity bool
}

// PendingChanges captures the unsaved changes. Take it before the repository
// write, which resets the baseline.
func (li *LineItem) PendingChanges() ChangeSet {
	return ChangeSet{Any: li.Changed(), Quantity: li.QuantityChanged()}
}

// QuantityChanged reports whether the quantity differs from the baseline.
func (li *LineItem) QuantityChanged() bool {
	return li.persisted == nil || li.persisted.quantity != li.Quantity
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
