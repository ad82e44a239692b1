package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prakyath/spree-commerse/internal/domain"
)

// --- Mocks ---

type fixedTaxAmounts struct {
	included map[string]decimal.Decimal
	added    map[string]decimal.Decimal
}

func (f *fixedTaxAmounts) IncludedTaxAmount(_ context.Context, zoneID, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	return f.included[zoneID], nil
}

func (f *fixedTaxAmounts) AddedTaxAmount(_ context.Context, zoneID, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	return f.added[zoneID], nil
}

type mockTaxRateRepository struct {
	mock.Mock
}

func (m *mockTaxRateRepository) ListByZone(ctx context.Context, zoneID string) ([]domain.TaxRate, error) {
	args := m.Called(ctx, zoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TaxRate), args.Error(1)
}

func (m *mockTaxRateRepository) IncludedRateFor(ctx context.Context, zoneID, taxCategoryID string) (decimal.Decimal, error) {
	args := m.Called(ctx, zoneID, taxCategoryID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func foreignVATVariant() *domain.Variant {
	return &domain.Variant{
		ID:              "var-1",
		Price:           dec("10.00"),
		Currency:        "EUR",
		TaxCategoryID:   "cat-clothing",
		ApplyForeignVAT: true,
	}
}

// --- Tests ---

func TestPriceIncludingVATFor_NoDefaultZone(t *testing.T) {
	pricer := NewVATPricer("", &fixedTaxAmounts{})

	price, err := pricer.PriceIncludingVATFor(context.Background(), foreignVATVariant(), "zone-fr")

	require.NoError(t, err)
	assert.True(t, price.Equal(dec("10.00")))
}

func TestPriceIncludingVATFor_DefaultZone(t *testing.T) {
	pricer := NewVATPricer("zone-de", &fixedTaxAmounts{})

	price, err := pricer.PriceIncludingVATFor(context.Background(), foreignVATVariant(), "zone-de")

	require.NoError(t, err)
	assert.True(t, price.Equal(dec("10.00")))
}

func TestPriceIncludingVATFor_OrderWithoutZoneUsesDefault(t *testing.T) {
	rates := new(mockTaxRateRepository)
	pricer := NewVATPricer("zone-de", NewRateTaxAmounts(rates))

	price, err := pricer.PriceIncludingVATFor(context.Background(), foreignVATVariant(), "")

	require.NoError(t, err)
	assert.Equal(t, "10.00", price.StringFixed(2))
	rates.AssertNotCalled(t, "IncludedRateFor", mock.Anything, mock.Anything, mock.Anything)
}

func TestPriceIncludingVATFor_ForeignVATDisabled(t *testing.T) {
	pricer := NewVATPricer("zone-de", &fixedTaxAmounts{
		included: map[string]decimal.Decimal{"zone-de": dec("0.19")},
		added:    map[string]decimal.Decimal{"zone-fr": dec("0.25")},
	})
	v := foreignVATVariant()
	v.ApplyForeignVAT = false

	price, err := pricer.PriceIncludingVATFor(context.Background(), v, "zone-fr")

	require.NoError(t, err)
	assert.True(t, price.Equal(dec("10.00")))
}

func TestPriceIncludingVATFor_SwapsTaxAmounts(t *testing.T) {
	pricer := NewVATPricer("zone-de", &fixedTaxAmounts{
		included: map[string]decimal.Decimal{"zone-de": dec("0.19")},
		added:    map[string]decimal.Decimal{"zone-fr": dec("0.25")},
	})

	price, err := pricer.PriceIncludingVATFor(context.Background(), foreignVATVariant(), "zone-fr")

	require.NoError(t, err)
	assert.Equal(t, "10.06", price.StringFixed(2))
}

func TestPriceIncludingVATFor_SwapsRates(t *testing.T) {
	rates := new(mockTaxRateRepository)
	ctx := context.Background()
	rates.On("IncludedRateFor", ctx, "zone-de", "cat-clothing").Return(dec("0.19"), nil)
	rates.On("IncludedRateFor", ctx, "zone-fr", "cat-clothing").Return(dec("0.25"), nil)

	pricer := NewVATPricer("zone-de", NewRateTaxAmounts(rates))

	price, err := pricer.PriceIncludingVATFor(ctx, foreignVATVariant(), "zone-fr")

	require.NoError(t, err)
	// 10.00 / 1.19 * 1.25 = 10.504...
	assert.Equal(t, "10.50", price.StringFixed(2))
	rates.AssertExpectations(t)
}

func TestPriceIncludingVATFor_RateLookupError(t *testing.T) {
	rates := new(mockTaxRateRepository)
	ctx := context.Background()
	boom := errors.New("connection refused")
	rates.On("IncludedRateFor", ctx, "zone-de", "cat-clothing").Return(decimal.Zero, boom)

	pricer := NewVATPricer("zone-de", NewRateTaxAmounts(rates))

	_, err := pricer.PriceIncludingVATFor(ctx, foreignVATVariant(), "zone-fr")

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "zone-de")
}

func TestRateTaxAmounts_ZeroRate(t *testing.T) {
	rates := new(mockTaxRateRepository)
	ctx := context.Background()
	rates.On("IncludedRateFor", ctx, "zone-us", "cat-clothing").Return(decimal.Zero, nil)

	amounts := NewRateTaxAmounts(rates)

	included, err := amounts.IncludedTaxAmount(ctx, "zone-us", "cat-clothing", dec("10.00"))
	require.NoError(t, err)
	assert.True(t, included.IsZero())

	added, err := amounts.AddedTaxAmount(ctx, "zone-us", "cat-clothing", dec("10.00"))
	require.NoError(t, err)
	assert.True(t, added.IsZero())
}
