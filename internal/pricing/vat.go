package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/repository"
)

// TaxAmounts resolves the VAT contained in, or added to, a price in a zone.
type TaxAmounts interface {
	// IncludedTaxAmount returns the tax contained in gross under the zone's
	// price-included rates for the tax category.
	IncludedTaxAmount(ctx context.Context, zoneID, taxCategoryID string, gross decimal.Decimal) (decimal.Decimal, error)

	// AddedTaxAmount returns the tax the zone's price-included rates add on
	// top of net for the tax category.
	AddedTaxAmount(ctx context.Context, zoneID, taxCategoryID string, net decimal.Decimal) (decimal.Decimal, error)
}

// VATPricer computes variant prices that include the VAT of a tax zone.
type VATPricer struct {
	defaultZoneID string
	taxes         TaxAmounts
}

// NewVATPricer creates a pricer. An empty defaultZoneID disables VAT
// switching and every price is the variant's raw price.
func NewVATPricer(defaultZoneID string, taxes TaxAmounts) *VATPricer {
	return &VATPricer{defaultZoneID: defaultZoneID, taxes: taxes}
}

// PriceIncludingVATFor returns the variant's price for customers in zoneID.
// Outside the default zone the default zone's VAT is taken out and the
// zone's VAT is added, rounded to two decimals. An empty zoneID (an order
// without a tax address) prices in the default zone.
func (p *VATPricer) PriceIncludingVATFor(ctx context.Context, v *domain.Variant, zoneID string) (decimal.Decimal, error) {
	raw := v.Price
	if zoneID == "" {
		zoneID = p.defaultZoneID
	}
	if p.defaultZoneID == "" || zoneID == p.defaultZoneID || !v.ApplyForeignVAT {
		return raw, nil
	}

	included, err := p.taxes.IncludedTaxAmount(ctx, p.defaultZoneID, v.TaxCategoryID, raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("included tax for default zone %s: %w", p.defaultZoneID, err)
	}

	added, err := p.taxes.AddedTaxAmount(ctx, zoneID, v.TaxCategoryID, raw.Sub(included))
	if err != nil {
		return decimal.Zero, fmt.Errorf("added tax for zone %s: %w", zoneID, err)
	}

	return raw.Sub(included).Add(added).Round(2), nil
}

// RateTaxAmounts derives tax amounts from the stored price-included rates.
// Intermediate amounts are not rounded.
type RateTaxAmounts struct {
	rates repository.TaxRateRepository
}

// NewRateTaxAmounts creates a TaxAmounts backed by rates.
func NewRateTaxAmounts(rates repository.TaxRateRepository) *RateTaxAmounts {
	return &RateTaxAmounts{rates: rates}
}

// IncludedTaxAmount is gross - gross/(1+rate).
func (r *RateTaxAmounts) IncludedTaxAmount(ctx context.Context, zoneID, taxCategoryID string, gross decimal.Decimal) (decimal.Decimal, error) {
	rate, err := r.rates.IncludedRateFor(ctx, zoneID, taxCategoryID)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsZero() {
		return decimal.Zero, nil
	}
	return gross.Sub(gross.Div(decimal.NewFromInt(1).Add(rate))), nil
}

// AddedTaxAmount is net * rate.
func (r *RateTaxAmounts) AddedTaxAmount(ctx context.Context, zoneID, taxCategoryID string, net decimal.Decimal) (decimal.Decimal, error) {
	rate, err := r.rates.IncludedRateFor(ctx, zoneID, taxCategoryID)
	if err != nil {
		return decimal.Zero, err
	}
	return net.Mul(rate), nil
}
