package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Adjustment source types.
const (
	AdjustmentSourceTax       = "tax"
	AdjustmentSourcePromotion = "promotion"
)

// Promotion calculators.
const (
	CalculatorFlatRate = "flat_rate"
	CalculatorPercent  = "percent"
)

// Adjustment is a monetary change applied to a line item.
type Adjustment struct {
	ID           string          `json:"id"`
	AdjustableID string          `json:"adjustable_id"`
	OrderID      string          `json:"order_id"`
	SourceType   string          `json:"source_type"`
	SourceID     string          `json:"source_id"`
	Label        string          `json:"label"`
	Amount       decimal.Decimal `json:"amount"`
	Included     bool            `json:"included"`
	Eligible     bool            `json:"eligible"`
	Closed       bool            `json:"closed"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (a *Adjustment) IsTax() bool { return a.SourceType == AdjustmentSourceTax }

func (a *Adjustment) IsPromotion() bool { return a.SourceType == AdjustmentSourcePromotion }

// TaxRate is a percentage (as a fraction, 0.19 for 19%) charged in a zone for
// a tax category.
type TaxRate struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	ZoneID          string          `json:"zone_id"`
	TaxCategoryID   string          `json:"tax_category_id"`
	Amount          decimal.Decimal `json:"amount"`
	IncludedInPrice bool            `json:"included_in_price"`
}

// PromotionAction computes the value of a promotion adjustment.
type PromotionAction struct {
	ID         string          `json:"id"`
	Calculator string          `json:"calculator"`
	Amount     decimal.Decimal `json:"amount"`
}

// Compute returns the (non-positive) promotion amount for item.
func (a *PromotionAction) Compute(item *LineItem) decimal.Decimal {
	amount := item.Amount()
	switch a.Calculator {
	case CalculatorFlatRate:
		return decimal.Min(a.Amount, amount).Neg()
	case CalculatorPercent:
		return amount.Mul(a.Amount).Div(decimal.NewFromInt(100)).Round(2).Neg()
	default:
		return decimal.Zero
	}
}
