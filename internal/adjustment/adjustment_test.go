package adjustment

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

type mockAdjustmentRepository struct {
	mock.Mock
}

func (m *mockAdjustmentRepository) ListByAdjustable(ctx context.Context, adjustableID string) ([]domain.Adjustment, error) {
	args := m.Called(ctx, adjustableID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Adjustment), args.Error(1)
}

func (m *mockAdjustmentRepository) Create(ctx context.Context, adj *domain.Adjustment) error {
	args := m.Called(ctx, adj)
	return args.Error(0)
}

func (m *mockAdjustmentRepository) UpdateAmount(ctx context.Context, id string, amount decimal.Decimal, eligible bool) error {
	args := m.Called(ctx, id, amount, eligible)
	return args.Error(0)
}

func (m *mockAdjustmentRepository) DeleteTaxByAdjustable(ctx context.Context, adjustableID string) error {
	args := m.Called(ctx, adjustableID)
	return args.Error(0)
}

func (m *mockAdjustmentRepository) DeleteByAdjustable(ctx context.Context, adjustableID string) error {
	args := m.Called(ctx, adjustableID)
	return args.Error(0)
}

type mockLineItemRepository struct {
	mock.Mock
}

func (m *mockLineItemRepository) Create(ctx context.Context, item *domain.LineItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockLineItemRepository) GetByID(ctx context.Context, id string) (*domain.LineItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LineItem), args.Error(1)
}

func (m *mockLineItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]domain.LineItem), args.Error(1)
}

func (m *mockLineItemRepository) Update(ctx context.Context, item *domain.LineItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockLineItemRepository) UpdateTotals(ctx context.Context, item *domain.LineItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockLineItemRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockPromotionRepository struct {
	mock.Mock
}

func (m *mockPromotionRepository) GetByID(ctx context.Context, id string) (*domain.PromotionAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PromotionAction), args.Error(1)
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEq(s string) any {
	want := dec(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func sampleItem() *domain.LineItem {
	return &domain.LineItem{
		ID:            "li-1",
		OrderID:       "order-1",
		VariantID:     "var-1",
		TaxCategoryID: "cat-clothing",
		Quantity:      2,
		Price:         decimal.NewNullDecimal(dec("10.00")),
		Currency:      "EUR",
	}
}

func sampleOrder() *domain.Order {
	return &domain.Order{ID: "order-1", Currency: "EUR", TaxZoneID: "zone-de"}
}

func zoneRates() []domain.TaxRate {
	return []domain.TaxRate{
		{ID: "rate-vat", Name: "VAT 19%", ZoneID: "zone-de", TaxCategoryID: "cat-clothing", Amount: dec("0.19"), IncludedInPrice: true},
		{ID: "rate-eco", Name: "Eco fee 5%", ZoneID: "zone-de", TaxCategoryID: "cat-clothing", Amount: dec("0.05")},
		{ID: "rate-food", Name: "Reduced 7%", ZoneID: "zone-de", TaxCategoryID: "cat-food", Amount: dec("0.07"), IncludedInPrice: true},
	}
}

// --- TaxAdjuster Tests ---

func TestAdjustTax_CreatesAdjustmentPerMatchingRate(t *testing.T) {
	rates := new(mockTaxRateRepository)
	adjs := new(mockAdjustmentRepository)
	items := new(mockLineItemRepository)
	ctx := context.Background()
	item := sampleItem()
	item.PromoTotal = dec("-2.00")

	rates.On("ListByZone", ctx, "zone-de").Return(zoneRates(), nil)
	adjs.On("DeleteTaxByAdjustable", ctx, "li-1").Return(nil)

	var created []*domain.Adjustment
	adjs.On("Create", ctx, mock.AnythingOfType("*domain.Adjustment")).
		Run(func(args mock.Arguments) { created = append(created, args.Get(1).(*domain.Adjustment)) }).
		Return(nil)
	items.On("UpdateTotals", ctx, item).Return(nil)

	err := NewTaxAdjuster(rates, adjs, items).AdjustTax(ctx, sampleOrder(), []*domain.LineItem{item})

	require.NoError(t, err)
	require.Len(t, created, 2)

	// discounted 18.00, pre-tax 18.00 / 1.19 = 15.13
	assert.Equal(t, "rate-vat", created[0].SourceID)
	assert.True(t, created[0].Included)
	assert.Equal(t, "2.87", created[0].Amount.StringFixed(2))
	assert.Equal(t, "rate-eco", created[1].SourceID)
	assert.False(t, created[1].Included)
	assert.Equal(t, "0.90", created[1].Amount.StringFixed(2))
	for _, a := range created {
		assert.Equal(t, domain.AdjustmentSourceTax, a.SourceType)
		assert.Equal(t, "li-1", a.AdjustableID)
		assert.Equal(t, "order-1", a.OrderID)
		assert.True(t, a.Eligible)
	}

	assert.Equal(t, "15.13", item.PreTaxAmount.StringFixed(2))
	assert.Equal(t, "2.87", item.IncludedTaxTotal.StringFixed(2))
	assert.Equal(t, "0.90", item.AdditionalTaxTotal.StringFixed(2))
	assert.Equal(t, "-1.10", item.AdjustmentTotal.StringFixed(2))
	rates.AssertExpectations(t)
	adjs.AssertExpectations(t)
	items.AssertExpectations(t)
}

func TestAdjustTax_NoMatchingRatesResetsPreTax(t *testing.T) {
	rates := new(mockTaxRateRepository)
	adjs := new(mockAdjustmentRepository)
	items := new(mockLineItemRepository)
	ctx := context.Background()
	item := sampleItem()
	item.TaxCategoryID = "cat-books"
	item.IncludedTaxTotal = dec("1.00")

	rates.On("ListByZone", ctx, "zone-de").Return(zoneRates(), nil)
	adjs.On("DeleteTaxByAdjustable", ctx, "li-1").Return(nil)
	items.On("UpdateTotals", ctx, item).Return(nil)

	err := NewTaxAdjuster(rates, adjs, items).AdjustTax(ctx, sampleOrder(), []*domain.LineItem{item})

	require.NoError(t, err)
	assert.Equal(t, "20.00", item.PreTaxAmount.StringFixed(2))
	assert.True(t, item.IncludedTaxTotal.IsZero())
	adjs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdjustTax_OrderWithoutZone(t *testing.T) {
	rates := new(mockTaxRateRepository)
	adjs := new(mockAdjustmentRepository)
	items := new(mockLineItemRepository)
	ctx := context.Background()
	item := sampleItem()
	order := sampleOrder()
	order.TaxZoneID = ""

	adjs.On("DeleteTaxByAdjustable", ctx, "li-1").Return(nil)
	items.On("UpdateTotals", ctx, item).Return(nil)

	err := NewTaxAdjuster(rates, adjs, items).AdjustTax(ctx, order, []*domain.LineItem{item})

	require.NoError(t, err)
	rates.AssertNotCalled(t, "ListByZone", mock.Anything, mock.Anything)
}

func TestAdjustTax_RateLookupError(t *testing.T) {
	rates := new(mockTaxRateRepository)
	ctx := context.Background()
	boom := errors.New("connection refused")
	rates.On("ListByZone", ctx, "zone-de").Return(nil, boom)

	err := NewTaxAdjuster(rates, new(mockAdjustmentRepository), new(mockLineItemRepository)).
		AdjustTax(ctx, sampleOrder(), []*domain.LineItem{sampleItem()})

	assert.ErrorIs(t, err, boom)
}

// --- Updater Tests ---

func TestUpdateAdjustments_KeepsBestPromotion(t *testing.T) {
	adjs := new(mockAdjustmentRepository)
	promos := new(mockPromotionRepository)
	items := new(mockLineItemRepository)
	ctx := context.Background()
	item := sampleItem()

	adjs.On("ListByAdjustable", ctx, "li-1").Return([]domain.Adjustment{
		{ID: "adj-flat", SourceType: domain.AdjustmentSourcePromotion, SourceID: "act-flat", Eligible: true},
		{ID: "adj-pct", SourceType: domain.AdjustmentSourcePromotion, SourceID: "act-pct", Eligible: true},
		{ID: "adj-vat", SourceType: domain.AdjustmentSourceTax, Amount: dec("2.87"), Included: true},
		{ID: "adj-eco", SourceType: domain.AdjustmentSourceTax, Amount: dec("0.90")},
	}, nil)
	promos.On("GetByID", ctx, "act-flat").Return(&domain.PromotionAction{ID: "act-flat", Calculator: domain.CalculatorFlatRate, Amount: dec("5")}, nil)
	promos.On("GetByID", ctx, "act-pct").Return(&domain.PromotionAction{ID: "act-pct", Calculator: domain.CalculatorPercent, Amount: dec("10")}, nil)
	adjs.On("UpdateAmount", ctx, "adj-flat", decEq("-5"), true).Return(nil)
	adjs.On("UpdateAmount", ctx, "adj-pct", decEq("-2"), false).Return(nil)
	items.On("UpdateTotals", ctx, item).Return(nil)

	err := NewUpdater(adjs, promos, items).UpdateAdjustments(ctx, item)

	require.NoError(t, err)
	assert.Equal(t, "-5.00", item.PromoTotal.StringFixed(2))
	assert.Equal(t, "2.87", item.IncludedTaxTotal.StringFixed(2))
	assert.Equal(t, "0.90", item.AdditionalTaxTotal.StringFixed(2))
	assert.Equal(t, "-4.10", item.AdjustmentTotal.StringFixed(2))
	assert.Equal(t, "15.90", item.FinalAmount().StringFixed(2))
	adjs.AssertExpectations(t)
	promos.AssertExpectations(t)
	items.AssertExpectations(t)
}

func TestUpdateAdjustments_ClosedPromotionKeepsAmount(t *testing.T) {
	adjs := new(mockAdjustmentRepository)
	promos := new(mockPromotionRepository)
	items := new(mockLineItemRepository)
	ctx := context.Background()
	item := sampleItem()

	adjs.On("ListByAdjustable", ctx, "li-1").Return([]domain.Adjustment{
		{ID: "adj-closed", SourceType: domain.AdjustmentSourcePromotion, SourceID: "act-old", Amount: dec("-3.00"), Eligible: true, Closed: true},
	}, nil)
	items.On("UpdateTotals", ctx, item).Return(nil)

	err := NewUpdater(adjs, promos, items).UpdateAdjustments(ctx, item)

	require.NoError(t, err)
	assert.Equal(t, "-3.00", item.PromoTotal.StringFixed(2))
	promos.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	adjs.AssertNotCalled(t, "UpdateAmount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAdjustments_NoAdjustments(t *testing.T) {
	adjs := new(mockAdjustmentRepository)
	items := new(mockLineItemRepository)
	ctx := context.Background()
	item := sampleItem()
	item.PromoTotal = dec("-1.00")
	item.AdjustmentTotal = dec("-1.00")

	adjs.On("ListByAdjustable", ctx, "li-1").Return([]domain.Adjustment{}, nil)
	items.On("UpdateTotals", ctx, item).Return(nil)

	err := NewUpdater(adjs, new(mockPromotionRepository), items).UpdateAdjustments(ctx, item)

	require.NoError(t, err)
	assert.True(t, item.PromoTotal.IsZero())
	assert.True(t, item.AdjustmentTotal.IsZero())
}

func TestUpdateAdjustments_PromotionLookupError(t *testing.T) {
	adjs := new(mockAdjustmentRepository)
	promos := new(mockPromotionRepository)
	ctx := context.Background()
	boom := errors.New("connection refused")

	adjs.On("ListByAdjustable", ctx, "li-1").Return([]domain.Adjustment{
		{ID: "adj-flat", SourceType: domain.AdjustmentSourcePromotion, SourceID: "act-flat"},
	}, nil)
	promos.On("GetByID", ctx, "act-flat").Return(nil, boom)

	err := NewUpdater(adjs, promos, new(mockLineItemRepository)).UpdateAdjustments(ctx, sampleItem())

	assert.ErrorIs(t, err, boom)
}
