package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/event"
	"github.com/prakyath/spree-commerse/internal/repository"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
	pkgkafka "github.com/prakyath/spree-commerse/pkg/kafka"
)

// --- Mock repositories ---

type mockLineItemRepository struct {
	mock.Mock
}

func (m *mockLineItemRepository) Create(ctx context.Context, item *domain.LineItem) error {
	args := m.Called(ctx, item)
	if args.Error(0) == nil {
		item.MarkPersisted()
	}
	return args.Error(0)
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
	args := m.Called(ctx, item)
	if args.Error(0) == nil {
		item.MarkPersisted()
	}
	return args.Error(0)
}

func (m *mockLineItemRepository) UpdateTotals(ctx context.Context, item *domain.LineItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *mockLineItemRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

type mockAdjustmentRepository struct {
	mock.Mock
}

func (m *mockAdjustmentRepository) ListByAdjustable(ctx context.Context, adjustableID string) ([]domain.Adjustment, error) {
	args := m.Called(ctx, adjustableID)
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

type mockVariantSource struct {
	mock.Mock
}

func (m *mockVariantSource) Variant(ctx context.Context, id string) (*domain.Variant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Variant), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

// fakeStore runs the transaction body directly against the mock repositories
// and records whether it committed.
type fakeStore struct {
	repos     repository.Repositories
	txCount   int
	committed int
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txCount++
	if err := fn(ctx, s.repos); err != nil {
		return err
	}
	s.committed++
	return nil
}

func (s *fakeStore) Repositories() repository.Repositories { return s.repos }

// --- Test helpers ---

type serviceFixture struct {
	svc         *LineItemService
	store       *fakeStore
	lineItems   *mockLineItemRepository
	orders      *mockOrderRepository
	adjustments *mockAdjustmentRepository
	variants    *mockVariantSource
	publisher   *mockPublisher
	engine      *engineMocks
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		lineItems:   new(mockLineItemRepository),
		orders:      new(mockOrderRepository),
		adjustments: new(mockAdjustmentRepository),
		variants:    new(mockVariantSource),
		publisher:   new(mockPublisher),
	}
	f.store = &fakeStore{repos: repository.Repositories{
		LineItems:   f.lineItems,
		Orders:      f.orders,
		Adjustments: f.adjustments,
	}}

	engine, mocks := newTestEngine()
	f.engine = mocks
	factory := func(repository.Repositories) *ConsistencyEngine { return engine }

	logger := newTestLogger()
	f.svc = NewLineItemService(f.store, f.variants, factory, event.NewProducer(f.publisher, logger), logger)
	return f
}

func intPtr(n int) *int { return &n }

// --- Tests ---

func TestCreate_Success(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	v := testVariant()

	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.pricer.On("PriceIncludingVATFor", mock.Anything, v, "zone-us").Return(dec("19.99"), nil)
	f.engine.stock.On("CanSupply", mock.Anything, v, 2).Return(true, nil)
	f.lineItems.On("Create", mock.Anything, mock.AnythingOfType("*domain.LineItem")).Return(nil)
	f.engine.tax.On("AdjustTax", mock.Anything, order, mock.Anything).Return(nil).Twice()
	f.engine.inventory.On("Verify", mock.Anything, order, mock.Anything, "").Return(nil)
	f.engine.adjustments.On("UpdateAdjustments", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemCreated, mock.Anything).Return(nil)

	item, err := f.svc.Create(context.Background(), CreateLineItemInput{
		OrderID:   "order-1",
		VariantID: "var-1",
		Quantity:  intPtr(2),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "19.99", item.Price.Decimal.StringFixed(2))
	assert.Equal(t, "USD", item.Currency)
	assert.Equal(t, "cat-clothing", item.TaxCategoryID)
	assert.True(t, item.IsPersisted())
	assert.Equal(t, 1, f.store.committed)
	f.lineItems.AssertExpectations(t)
	f.engine.assertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestCreate_NilQuantityBecomesZero(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	order.CheckoutSteps = nil
	v := testVariant()

	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.pricer.On("PriceIncludingVATFor", mock.Anything, v, "zone-us").Return(dec("19.99"), nil)
	f.lineItems.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.engine.tax.On("AdjustTax", mock.Anything, order, mock.Anything).Return(nil)
	f.engine.adjustments.On("UpdateAdjustments", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemCreated, mock.Anything).Return(nil)

	item, err := f.svc.Create(context.Background(), CreateLineItemInput{OrderID: "order-1", VariantID: "var-1"})

	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)
	f.engine.stock.AssertNotCalled(t, "CanSupply", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_UnknownVariantFailsValidation(t *testing.T) {
	f := newServiceFixture()

	f.variants.On("Variant", mock.Anything, "var-x").Return(nil, apperrors.NotFound("variant", "var-x"))
	f.orders.On("GetByID", mock.Anything, "order-1").Return(testOrder(), nil)

	_, err := f.svc.Create(context.Background(), CreateLineItemInput{
		OrderID:   "order-1",
		VariantID: "var-x",
		Quantity:  intPtr(1),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingVariant)
	assert.ErrorIs(t, err, apperrors.ErrUnprocessable)
	assert.Equal(t, 0, f.store.committed)
	f.lineItems.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_CurrencyMismatch(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	v := testVariant()

	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.stock.On("CanSupply", mock.Anything, v, 1).Return(true, nil)

	_, err := f.svc.Create(context.Background(), CreateLineItemInput{
		OrderID:   "order-1",
		VariantID: "var-1",
		Quantity:  intPtr(1),
		Price:     nullDec("15.00"),
		Currency:  "EUR",
	})

	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	f.lineItems.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_WithPriceOptions(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	order.Currency = "EUR"
	order.CheckoutSteps = nil
	v := testVariant()

	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.pricer.On("PriceIncludingVATFor", mock.Anything, v, "zone-us").Return(dec("19.99"), nil)
	f.engine.stock.On("CanSupply", mock.Anything, v, 1).Return(true, nil)
	f.lineItems.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.engine.tax.On("AdjustTax", mock.Anything, order, mock.Anything).Return(nil)
	f.engine.adjustments.On("UpdateAdjustments", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemCreated, mock.Anything).Return(nil)

	item, err := f.svc.Create(context.Background(), CreateLineItemInput{
		OrderID:   "order-1",
		VariantID: "var-1",
		Quantity:  intPtr(1),
		Options:   PriceOptions{Modifiers: map[string]string{"size": "xl"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "EUR", item.Currency)
	assert.Equal(t, "18.50", item.Price.Decimal.StringFixed(2))
	assert.Equal(t, map[string]string{"size": "xl"}, item.SelectedOptions)
}

func TestCreate_OutOfRangeCatalogPrice(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	order.Currency = "EUR"
	v := testVariant()
	v.Prices[0].Amount = nullDec("1000000.00")

	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.pricer.On("PriceIncludingVATFor", mock.Anything, v, "zone-us").Return(dec("19.99"), nil)

	_, err := f.svc.Create(context.Background(), CreateLineItemInput{
		OrderID:   "order-1",
		VariantID: "var-1",
		Quantity:  intPtr(1),
		Options:   PriceOptions{Currency: "EUR"},
	})

	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	assert.ErrorIs(t, err, apperrors.ErrUnprocessable)
	f.lineItems.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_OrderNotFound(t *testing.T) {
	f := newServiceFixture()

	f.variants.On("Variant", mock.Anything, "var-1").Return(testVariant(), nil)
	f.orders.On("GetByID", mock.Anything, "order-x").Return(nil, apperrors.NotFound("order", "order-x"))

	_, err := f.svc.Create(context.Background(), CreateLineItemInput{OrderID: "order-x", VariantID: "var-1", Quantity: intPtr(1)})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreate_CatalogUnavailable(t *testing.T) {
	f := newServiceFixture()
	f.variants.On("Variant", mock.Anything, "var-1").Return(nil, apperrors.ErrServiceUnavail)

	_, err := f.svc.Create(context.Background(), CreateLineItemInput{OrderID: "order-1", VariantID: "var-1", Quantity: intPtr(1)})

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, 0, f.store.txCount)
}

func TestCreate_PublishFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	order.CheckoutSteps = nil
	v := testVariant()

	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.pricer.On("PriceIncludingVATFor", mock.Anything, v, "zone-us").Return(dec("19.99"), nil)
	f.engine.stock.On("CanSupply", mock.Anything, v, 1).Return(true, nil)
	f.lineItems.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.engine.tax.On("AdjustTax", mock.Anything, order, mock.Anything).Return(nil)
	f.engine.adjustments.On("UpdateAdjustments", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemCreated, mock.Anything).Return(errors.New("broker down"))

	item, err := f.svc.Create(context.Background(), CreateLineItemInput{OrderID: "order-1", VariantID: "var-1", Quantity: intPtr(1)})

	require.NoError(t, err)
	assert.NotNil(t, item)
}

func persistedItem(quantity int) *domain.LineItem {
	item := &domain.LineItem{
		ID:            "li-1",
		OrderID:       "order-1",
		VariantID:     "var-1",
		Quantity:      quantity,
		Price:         nullDec("19.99"),
		CostPrice:     nullDec("7.50"),
		Currency:      "USD",
		TaxCategoryID: "cat-clothing",
	}
	item.MarkPersisted()
	return item
}

func TestUpdateQuantity_Success(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	v := testVariant()
	item := persistedItem(2)

	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(item, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.engine.inventory.On("OnHandCount", mock.Anything, "li-1").Return(2, nil)
	f.engine.stock.On("CanSupply", mock.Anything, v, 3).Return(true, nil)
	f.lineItems.On("Update", mock.Anything, item).Return(nil)
	f.engine.inventory.On("Verify", mock.Anything, order, item, "").Return(nil)
	f.engine.tax.On("AdjustTax", mock.Anything, order, []*domain.LineItem{item}).Return(nil)
	f.engine.adjustments.On("UpdateAdjustments", mock.Anything, item).Return(nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemUpdated, mock.Anything).Return(nil)

	updated, err := f.svc.UpdateQuantity(context.Background(), "li-1", intPtr(5), "")

	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
	f.lineItems.AssertExpectations(t)
	f.engine.assertExpectations(t)
}

func TestUpdateQuantity_Unchanged(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	v := testVariant()
	item := persistedItem(2)

	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(item, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.engine.inventory.On("OnHandCount", mock.Anything, "li-1").Return(2, nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemUpdated, mock.Anything).Return(nil)

	_, err := f.svc.UpdateQuantity(context.Background(), "li-1", intPtr(2), "")

	require.NoError(t, err)
	f.lineItems.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.engine.inventory.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.engine.tax.AssertNotCalled(t, "AdjustTax", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateQuantity_InsufficientStock(t *testing.T) {
	f := newServiceFixture()
	v := testVariant()
	item := persistedItem(1)

	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(item, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(testOrder(), nil)
	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.engine.inventory.On("OnHandCount", mock.Anything, "li-1").Return(0, nil)
	f.engine.stock.On("CanSupply", mock.Anything, v, 10).Return(false, nil)

	_, err := f.svc.UpdateQuantity(context.Background(), "li-1", intPtr(10), "")

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	f.lineItems.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.store.committed)
}

func TestUpdateQuantity_NotFound(t *testing.T) {
	f := newServiceFixture()
	f.lineItems.On("GetByID", mock.Anything, "li-x").Return(nil, apperrors.NotFound("line item", "li-x"))

	_, err := f.svc.UpdateQuantity(context.Background(), "li-x", intPtr(1), "")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateOptions_RepricesWithoutTax(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	v := testVariant()
	item := persistedItem(1)

	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(item, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)
	f.engine.inventory.On("OnHandCount", mock.Anything, "li-1").Return(1, nil)
	f.lineItems.On("Update", mock.Anything, item).Return(nil)
	f.engine.inventory.On("Verify", mock.Anything, order, item, "").Return(nil)
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemUpdated, mock.Anything).Return(nil)

	updated, err := f.svc.UpdateOptions(context.Background(), "li-1", PriceOptions{Modifiers: map[string]string{"size": "xl"}})

	require.NoError(t, err)
	assert.Equal(t, "21.99", updated.Price.Decimal.StringFixed(2))
	f.engine.tax.AssertNotCalled(t, "AdjustTax", mock.Anything, mock.Anything, mock.Anything)
}

func TestDestroy_Success(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	item := persistedItem(2)

	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(item, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.inventory.On("Verify", mock.Anything, order, mock.Anything, "").Return(nil)
	f.engine.inventory.On("DestroyUnits", mock.Anything, "li-1").Return(int64(2), nil)
	f.adjustments.On("DeleteByAdjustable", mock.Anything, "li-1").Return(nil)
	f.lineItems.On("Delete", mock.Anything, "li-1").Return(nil)

	var sent *pkgkafka.Event
	f.publisher.On("Publish", mock.Anything, event.TopicLineItemDeleted, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	err := f.svc.Destroy(context.Background(), "li-1")

	require.NoError(t, err)
	require.NotNil(t, sent)
	var data event.LineItemDeletedData
	require.NoError(t, sent.UnmarshalData(&data))
	assert.Equal(t, int64(2), data.DestroyedUnits)
	f.lineItems.AssertExpectations(t)
	f.adjustments.AssertExpectations(t)
}

func TestDestroy_InventoryErrorRollsBack(t *testing.T) {
	f := newServiceFixture()
	order := testOrder()
	item := persistedItem(2)

	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(item, nil)
	f.orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)
	f.engine.inventory.On("Verify", mock.Anything, order, mock.Anything, "").Return(nil)
	f.engine.inventory.On("DestroyUnits", mock.Anything, "li-1").Return(int64(0), errors.New("lock timeout"))

	err := f.svc.Destroy(context.Background(), "li-1")

	require.Error(t, err)
	assert.Equal(t, 0, f.store.committed)
	f.lineItems.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestGet_LoadsVariant(t *testing.T) {
	f := newServiceFixture()
	v := testVariant()
	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(persistedItem(1), nil)
	f.variants.On("Variant", mock.Anything, "var-1").Return(v, nil)

	item, err := f.svc.Get(context.Background(), "li-1")

	require.NoError(t, err)
	assert.Same(t, v, item.Variant)
	assert.Equal(t, "T-Shirt", item.Name())
}

func TestGet_DeletedVariantLeavesNil(t *testing.T) {
	f := newServiceFixture()
	f.lineItems.On("GetByID", mock.Anything, "li-1").Return(persistedItem(1), nil)
	f.variants.On("Variant", mock.Anything, "var-1").Return(nil, apperrors.NotFound("variant", "var-1"))

	item, err := f.svc.Get(context.Background(), "li-1")

	require.NoError(t, err)
	assert.Nil(t, item.Variant)
	assert.Empty(t, item.Name())
}

func TestListByOrder(t *testing.T) {
	f := newServiceFixture()
	items := []domain.LineItem{*persistedItem(1), {ID: "li-2", OrderID: "order-1"}}
	f.lineItems.On("ListByOrder", mock.Anything, "order-1").Return(items, nil)

	got, err := f.svc.ListByOrder(context.Background(), "order-1")

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCheckStock(t *testing.T) {
	f := newServiceFixture()
	item := persistedItem(3)
	item.Variant = testVariant()
	f.engine.stock.On("CanSupply", mock.Anything, item.Variant, 3).Return(true, nil)

	ok, err := f.svc.CheckStock(context.Background(), item)

	require.NoError(t, err)
	assert.True(t, ok)
}
