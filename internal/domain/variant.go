package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxPriceAmount is the largest amount a Price may hold.
var MaxPriceAmount = decimal.RequireFromString("999999.99")

// Price is a variant's amount in one currency.
type Price struct {
	VariantID string              `json:"variant_id"`
	Currency  string              `json:"currency"`
	Amount    decimal.NullDecimal `json:"amount"`
}

// Validate checks the amount bounds. A missing amount is allowed.
func (p Price) Validate() error {
	var errs ValidationErrors
	if p.Amount.Valid {
		switch {
		case p.Amount.Decimal.IsNegative():
			errs.Add("amount", ErrInvalidPrice, "must be greater than or equal to 0")
		case p.Amount.Decimal.GreaterThan(MaxPriceAmount):
			errs.Add("amount", ErrInvalidPrice, "must be less than or equal to 999999.99")
		}
	}
	return errs.Err()
}

// OptionModifiers maps option name -> option value -> currency -> amount
// added to the base price when that value is selected.
type OptionModifiers map[string]map[string]map[string]decimal.Decimal

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID              string              `json:"id"`
	ProductID       string              `json:"product_id"`
	SKU             string              `json:"sku"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Price           decimal.Decimal     `json:"price"`
	CostPrice       decimal.NullDecimal `json:"cost_price"`
	Currency        string              `json:"currency"`
	TaxCategoryID   string              `json:"tax_category_id,omitempty"`
	TrackInventory  bool                `json:"track_inventory"`
	Backorderable   bool                `json:"backorderable"`
	ApplyForeignVAT bool                `json:"apply_foreign_vat"`
	Prices          []Price             `json:"prices,omitempty"`
	OptionModifiers OptionModifiers     `json:"option_modifiers,omitempty"`
	DeletedAt       *time.Time          `json:"deleted_at,omitempty"`
}

// PriceIn returns the variant's price in currency. When none is recorded the
// returned Price has no amount, except for the variant's own currency which
// falls back to the raw price.
func (v *Variant) PriceIn(currency string) Price {
	for _, p := range v.Prices {
		if p.Currency == currency {
			return p
		}
	}
	price := Price{VariantID: v.ID, Currency: currency}
	if currency == v.Currency {
		price.Amount = decimal.NewNullDecimal(v.Price)
	}
	return price
}

// PriceModifierAmountIn sums the modifiers of the selected option values in
// currency. Unknown options, values or currencies contribute nothing.
func (v *Variant) PriceModifierAmountIn(currency string, selections map[string]string) decimal.Decimal {
	total := decimal.Zero
	for option, value := range selections {
		if amount, ok := v.OptionModifiers[option][value][currency]; ok {
			total = total.Add(amount)
		}
	}
	return total
}

// PriceModifierAmount is PriceModifierAmountIn for the variant's currency.
func (v *Variant) PriceModifierAmount(selections map[string]string) decimal.Decimal {
	return v.PriceModifierAmountIn(v.Currency, selections)
}

// IsDeleted reports whether the variant has been soft-deleted.
func (v *Variant) IsDeleted() bool {
	return v.DeletedAt != nil
}
