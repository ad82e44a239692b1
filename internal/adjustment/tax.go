package adjustment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/repository"
)

// TaxAdjuster charges the tax rates of an order's zone to its line items.
type TaxAdjuster struct {
	rates       repository.TaxRateRepository
	adjustments repository.AdjustmentRepository
	lineItems   repository.LineItemRepository
	now         func() time.Time
}

// NewTaxAdjuster creates a TaxAdjuster.
func NewTaxAdjuster(rates repository.TaxRateRepository, adjustments repository.AdjustmentRepository, lineItems repository.LineItemRepository) *TaxAdjuster {
	return &TaxAdjuster{
		rates:       rates,
		adjustments: adjustments,
		lineItems:   lineItems,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AdjustTax replaces the tax adjustments of items with one adjustment per
// rate matching the order's zone and the item's tax category, and stores the
// resulting pre-tax amount and tax totals on each item.
func (t *TaxAdjuster) AdjustTax(ctx context.Context, order *domain.Order, items []*domain.LineItem) error {
	var rates []domain.TaxRate
	if order.TaxZoneID != "" {
		var err error
		rates, err = t.rates.ListByZone(ctx, order.TaxZoneID)
		if err != nil {
			return fmt.Errorf("list tax rates for zone %s: %w", order.TaxZoneID, err)
		}
	}

	for _, item := range items {
		if err := t.adjustItem(ctx, order, item, ratesFor(rates, item.TaxCategoryID)); err != nil {
			return err
		}
	}
	return nil
}

func ratesFor(rates []domain.TaxRate, taxCategoryID string) []domain.TaxRate {
	var matched []domain.TaxRate
	for _, r := range rates {
		if r.TaxCategoryID == taxCategoryID {
			matched = append(matched, r)
		}
	}
	return matched
}

func (t *TaxAdjuster) adjustItem(ctx context.Context, order *domain.Order, item *domain.LineItem, rates []domain.TaxRate) error {
	if err := t.adjustments.DeleteTaxByAdjustable(ctx, item.ID); err != nil {
		return fmt.Errorf("clear tax adjustments: %w", err)
	}

	discounted := item.DiscountedAmount()
	includedRate := decimal.Zero
	for _, r := range rates {
		if r.IncludedInPrice {
			includedRate = includedRate.Add(r.Amount)
		}
	}
	preTax := discounted.Div(decimal.NewFromInt(1).Add(includedRate)).Round(2)

	included, additional := decimal.Zero, decimal.Zero
	now := t.now()
	for _, r := range rates {
		base := discounted
		if r.IncludedInPrice {
			base = preTax
		}
		amount := base.Mul(r.Amount).Round(2)

		adj := &domain.Adjustment{
			ID:           uuid.New().String(),
			AdjustableID: item.ID,
			OrderID:      order.ID,
			SourceType:   domain.AdjustmentSourceTax,
			SourceID:     r.ID,
			Label:        r.Name,
			Amount:       amount,
			Included:     r.IncludedInPrice,
			Eligible:     true,
			CreatedAt:    now,
		}
		if err := t.adjustments.Create(ctx, adj); err != nil {
			return fmt.Errorf("create tax adjustment: %w", err)
		}

		if r.IncludedInPrice {
			included = included.Add(amount)
		} else {
			additional = additional.Add(amount)
		}
	}

	item.PreTaxAmount = preTax
	item.IncludedTaxTotal = included
	item.AdditionalTaxTotal = additional
	item.AdjustmentTotal = item.PromoTotal.Add(additional)
	if err := t.lineItems.UpdateTotals(ctx, item); err != nil {
		return fmt.Errorf("store tax totals: %w", err)
	}
	return nil
}
