package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cart"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// Mock delivery writer for testing
type MockDeliveryWriter struct {
	mock.Mock
}

func (m *MockDeliveryWriter) FindForStoreAndDate(ctx context.Context, storeID uuid.UUID, day time.Time) (*models.Delivery, error) {
	args := m.Called(ctx, storeID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Delivery), args.Error(1)
}

func (m *MockDeliveryWriter) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	args := m.Called(ctx, delivery)
	return args.Error(0)
}

func (m *MockDeliveryWriter) GetTotals(ctx context.Context, deliveryID uuid.UUID) (int, decimal.Decimal, error) {
	args := m.Called(ctx, deliveryID)
	return args.Int(0), args.Get(1).(decimal.Decimal), args.Error(2)
}

func (m *MockDeliveryWriter) UpdateTotals(ctx context.Context, deliveryID uuid.UUID, totalItems int, totalValue decimal.Decimal) error {
	args := m.Called(ctx, deliveryID, totalItems, totalValue)
	return args.Error(0)
}

func (m *MockDeliveryWriter) CreateItem(ctx context.Context, item *models.DeliveryItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func approveAll(uuid.UUID, string) bool { return true }
func approveNone(uuid.UUID, string) bool { return false }

func testStore(name string) *models.Store {
	return &models.Store{ID: uuid.New(), Name: name}
}

func testProduct(name, price string) *models.ProductType {
	return &models.ProductType{ID: uuid.New(), Name: name, SalePrice: decimal.RequireFromString(price)}
}

func TestCommitEmptyCartRejected(t *testing.T) {
	committer := NewDeliveryCommitter(new(MockDeliveryWriter),
		NewDeliverySequencer(new(MockLastNumberReader), "ENT"), nil, nil, nil, nil)

	_, err := committer.Commit(context.Background(), cart.New(), testDay, "", nil, approveAll)
	require.ErrorIs(t, err, cart.ErrEmptyCart)

	_, err = committer.Commit(context.Background(), nil, testDay, "", nil, approveAll)
	require.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestCommitCreatesNumberedDeliveriesInCartOrder(t *testing.T) {
	storeA := testStore("Loja Centro")
	storeB := testStore("Loja Norte")
	product := testProduct("Caesar", "12.50")

	crt := cart.New()
	_, err := crt.Add(storeA, product, 5, "LOTE-20240115")
	require.NoError(t, err)
	_, err = crt.Add(storeB, product, 3, "LOTE-20240115")
	require.NoError(t, err)

	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("ENT-20240114-0007", nil)

	var created []*models.Delivery
	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, mock.Anything, testDay).Return(nil, nil)
	mockWriter.On("CreateDelivery", mock.Anything, mock.AnythingOfType("*models.Delivery")).
		Run(func(args mock.Arguments) {
			created = append(created, args.Get(1).(*models.Delivery))
		}).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.AnythingOfType("*models.DeliveryItem")).Return(nil)

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "morning run", nil, approveAll)
	require.NoError(t, err)
	require.Len(t, result.Stores, 2)

	// Counter read once, then incremented per created delivery
	require.Equal(t, OutcomeCreated, result.Stores[0].Outcome)
	require.Equal(t, "ENT-20240115-0008", result.Stores[0].DeliveryNumber)
	require.Equal(t, OutcomeCreated, result.Stores[1].Outcome)
	require.Equal(t, "ENT-20240115-0009", result.Stores[1].DeliveryNumber)

	require.Len(t, created, 2)
	require.Equal(t, storeA.ID, created[0].StoreID)
	require.Equal(t, 5, created[0].TotalItems)
	require.True(t, created[0].TotalValue.Equal(decimal.RequireFromString("62.50")))
	require.Equal(t, "morning run", *created[0].Notes)

	// The cart is cleared after the batch
	require.True(t, crt.Empty())
	mockReader.AssertNumberOfCalls(t, "LastDeliveryNumber", 1)
}

func TestCommitMergesIntoExistingDeliveryWhenApproved(t *testing.T) {
	store := testStore("Loja Centro")
	product := testProduct("Caesar", "10.00")

	existing := &models.Delivery{
		ID:             uuid.New(),
		DeliveryNumber: "ENT-20240115-0003",
		StoreID:        store.ID,
		ProductionDate: testDay,
	}

	crt := cart.New()
	_, err := crt.Add(store, product, 4, "LOTE-20240115")
	require.NoError(t, err)

	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("ENT-20240115-0003", nil)

	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, store.ID, testDay).Return(existing, nil)
	mockWriter.On("GetTotals", mock.Anything, existing.ID).Return(6, decimal.RequireFromString("60.00"), nil)
	mockWriter.On("UpdateTotals", mock.Anything, existing.ID, 10, decimal.RequireFromString("100.00")).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.AnythingOfType("*models.DeliveryItem")).Return(nil)

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Len(t, result.Stores, 1)

	// Totals advance by addition; the delivery number never changes on merge
	require.Equal(t, OutcomeMerged, result.Stores[0].Outcome)
	require.Equal(t, "ENT-20240115-0003", result.Stores[0].DeliveryNumber)

	mockWriter.AssertExpectations(t)
	mockWriter.AssertNotCalled(t, "CreateDelivery", mock.Anything, mock.Anything)
}

func TestCommitSkipsMergeWithoutApproval(t *testing.T) {
	store := testStore("Loja Centro")
	product := testProduct("Caesar", "10.00")

	existing := &models.Delivery{
		ID:             uuid.New(),
		DeliveryNumber: "ENT-20240115-0003",
		StoreID:        store.ID,
		ProductionDate: testDay,
	}

	crt := cart.New()
	_, err := crt.Add(store, product, 4, "LOTE-20240115")
	require.NoError(t, err)

	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("ENT-20240115-0003", nil)

	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, store.ID, testDay).Return(existing, nil)

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "", nil, approveNone)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, result.Stores[0].Outcome)

	// Nothing written for a skipped store
	mockWriter.AssertNotCalled(t, "CreateDelivery", mock.Anything, mock.Anything)
	mockWriter.AssertNotCalled(t, "UpdateTotals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockWriter.AssertNotCalled(t, "CreateItem", mock.Anything, mock.Anything)
}

func TestCommitFailedItemInsertsAreCountedNotFatal(t *testing.T) {
	store := testStore("Loja Centro")
	caesar := testProduct("Caesar", "10.00")
	greek := testProduct("Greek", "11.00")

	crt := cart.New()
	_, err := crt.Add(store, caesar, 2, "LOTE-20240115")
	require.NoError(t, err)
	_, err = crt.Add(store, greek, 1, "LOTE-20240115")
	require.NoError(t, err)

	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("", nil)

	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, store.ID, testDay).Return(nil, nil)
	mockWriter.On("CreateDelivery", mock.Anything, mock.AnythingOfType("*models.Delivery")).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.MatchedBy(func(item *models.DeliveryItem) bool {
		return item.ProductTypeID == caesar.ID
	})).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.MatchedBy(func(item *models.DeliveryItem) bool {
		return item.ProductTypeID == greek.ID
	})).Return(errors.New("constraint violation"))

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, result.Stores[0].Outcome)
	require.Equal(t, 1, result.Stores[0].FailedItems)
}

func TestCommitHeaderFailureIsFatalForThatStoreOnly(t *testing.T) {
	storeA := testStore("Loja Centro")
	storeB := testStore("Loja Norte")
	product := testProduct("Caesar", "10.00")

	crt := cart.New()
	_, err := crt.Add(storeA, product, 2, "LOTE-20240115")
	require.NoError(t, err)
	_, err = crt.Add(storeB, product, 2, "LOTE-20240115")
	require.NoError(t, err)

	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("", nil)

	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, mock.Anything, testDay).Return(nil, nil)
	mockWriter.On("CreateDelivery", mock.Anything, mock.MatchedBy(func(d *models.Delivery) bool {
		return d.StoreID == storeA.ID
	})).Return(errors.New("disk full"))
	mockWriter.On("CreateDelivery", mock.Anything, mock.MatchedBy(func(d *models.Delivery) bool {
		return d.StoreID == storeB.ID
	})).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.AnythingOfType("*models.DeliveryItem")).Return(nil)

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Len(t, result.Stores, 2)

	require.Equal(t, OutcomeFailed, result.Stores[0].Outcome)
	require.NotEmpty(t, result.Stores[0].Error)

	// The failed header hands its number back; store B gets -0001
	require.Equal(t, OutcomeCreated, result.Stores[1].Outcome)
	require.Equal(t, "ENT-20240115-0001", result.Stores[1].DeliveryNumber)
}

func TestCommitRetriesOnceOnDuplicateDeliveryNumber(t *testing.T) {
	store := testStore("Loja Centro")
	product := testProduct("Caesar", "10.00")

	crt := cart.New()
	_, err := crt.Add(store, product, 2, "LOTE-20240115")
	require.NoError(t, err)

	// Another session burned 0005 between our read and our insert
	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("ENT-20240115-0004", nil).Once()
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("ENT-20240115-0005", nil).Once()

	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, store.ID, testDay).Return(nil, nil)
	mockWriter.On("CreateDelivery", mock.Anything, mock.MatchedBy(func(d *models.Delivery) bool {
		return d.DeliveryNumber == "ENT-20240115-0005"
	})).Return(errors.New(`duplicate key value violates unique constraint "idx_production_deliveries_delivery_number"`))
	mockWriter.On("CreateDelivery", mock.Anything, mock.MatchedBy(func(d *models.Delivery) bool {
		return d.DeliveryNumber == "ENT-20240115-0006"
	})).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.AnythingOfType("*models.DeliveryItem")).Return(nil)

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, result.Stores[0].Outcome)
	require.Equal(t, "ENT-20240115-0006", result.Stores[0].DeliveryNumber)

	mockReader.AssertExpectations(t)
	mockWriter.AssertExpectations(t)
}

func TestCommitSwitchesToMergeWhenStoreDaySlotTaken(t *testing.T) {
	store := testStore("Loja Centro")
	product := testProduct("Caesar", "10.00")

	crt := cart.New()
	_, err := crt.Add(store, product, 2, "LOTE-20240115")
	require.NoError(t, err)

	raced := &models.Delivery{
		ID:             uuid.New(),
		DeliveryNumber: "ENT-20240115-0005",
		StoreID:        store.ID,
		ProductionDate: testDay,
	}

	mockReader := new(MockLastNumberReader)
	mockReader.On("LastDeliveryNumber", mock.Anything).Return("ENT-20240115-0004", nil)

	// Nothing existed at first look, but the insert hits the store/day unique
	// index and the re-check finds the concurrent delivery.
	mockWriter := new(MockDeliveryWriter)
	mockWriter.On("FindForStoreAndDate", mock.Anything, store.ID, testDay).Return(nil, nil).Once()
	mockWriter.On("CreateDelivery", mock.Anything, mock.AnythingOfType("*models.Delivery")).
		Return(errors.New(`duplicate key value violates unique constraint "idx_deliveries_store_day"`)).Once()
	mockWriter.On("FindForStoreAndDate", mock.Anything, store.ID, testDay).Return(raced, nil).Once()
	mockWriter.On("GetTotals", mock.Anything, raced.ID).Return(3, decimal.RequireFromString("30.00"), nil)
	mockWriter.On("UpdateTotals", mock.Anything, raced.ID, 5, decimal.RequireFromString("50.00")).Return(nil)
	mockWriter.On("CreateItem", mock.Anything, mock.AnythingOfType("*models.DeliveryItem")).Return(nil)

	committer := NewDeliveryCommitter(mockWriter,
		NewDeliverySequencer(mockReader, "ENT"), nil, nil, nil, nil)

	result, err := committer.Commit(context.Background(), crt, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, result.Stores[0].Outcome)
	require.Equal(t, "ENT-20240115-0005", result.Stores[0].DeliveryNumber)

	mockWriter.AssertExpectations(t)
}

// fakeDeliveryStore is an in-memory DeliveryWriter and LastNumberReader used
// to check end-state properties across multiple commits.
type fakeDeliveryStore struct {
	deliveries map[uuid.UUID]*models.Delivery
	items      []models.DeliveryItem
	lastNumber string
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{deliveries: make(map[uuid.UUID]*models.Delivery)}
}

func (f *fakeDeliveryStore) FindForStoreAndDate(_ context.Context, storeID uuid.UUID, day time.Time) (*models.Delivery, error) {
	for _, d := range f.deliveries {
		if d.StoreID == storeID && d.ProductionDate.Equal(day) {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDeliveryStore) CreateDelivery(_ context.Context, delivery *models.Delivery) error {
	for _, d := range f.deliveries {
		if d.DeliveryNumber == delivery.DeliveryNumber {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
		if d.StoreID == delivery.StoreID && d.ProductionDate.Equal(delivery.ProductionDate) {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	copied := *delivery
	f.deliveries[delivery.ID] = &copied
	f.lastNumber = delivery.DeliveryNumber
	return nil
}

func (f *fakeDeliveryStore) GetTotals(_ context.Context, deliveryID uuid.UUID) (int, decimal.Decimal, error) {
	d, ok := f.deliveries[deliveryID]
	if !ok {
		return 0, decimal.Zero, fmt.Errorf("delivery not found")
	}
	return d.TotalItems, d.TotalValue, nil
}

func (f *fakeDeliveryStore) UpdateTotals(_ context.Context, deliveryID uuid.UUID, totalItems int, totalValue decimal.Decimal) error {
	d, ok := f.deliveries[deliveryID]
	if !ok {
		return fmt.Errorf("delivery not found")
	}
	d.TotalItems = totalItems
	d.TotalValue = totalValue
	return nil
}

func (f *fakeDeliveryStore) CreateItem(_ context.Context, item *models.DeliveryItem) error {
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeDeliveryStore) LastDeliveryNumber(_ context.Context) (string, error) {
	return f.lastNumber, nil
}

func TestMergeEndStateMatchesSingleCombinedCommit(t *testing.T) {
	store := testStore("Loja Centro")
	caesar := testProduct("Caesar", "10.00")
	greek := testProduct("Greek", "12.00")

	// Path one: commit two batches for the same store and day, second merges
	split := newFakeDeliveryStore()
	committer := NewDeliveryCommitter(split, NewDeliverySequencer(split, "ENT"), nil, nil, nil, nil)

	first := cart.New()
	_, err := first.Add(store, caesar, 3, "LOTE-20240115")
	require.NoError(t, err)
	result, err := committer.Commit(context.Background(), first, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, result.Stores[0].Outcome)

	second := cart.New()
	_, err = second.Add(store, greek, 2, "LOTE-20240115")
	require.NoError(t, err)
	result, err = committer.Commit(context.Background(), second, testDay, "", nil, approveAll)
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, result.Stores[0].Outcome)

	// Path two: commit everything in one batch
	combined := newFakeDeliveryStore()
	committer = NewDeliveryCommitter(combined, NewDeliverySequencer(combined, "ENT"), nil, nil, nil, nil)

	all := cart.New()
	_, err = all.Add(store, caesar, 3, "LOTE-20240115")
	require.NoError(t, err)
	_, err = all.Add(store, greek, 2, "LOTE-20240115")
	require.NoError(t, err)
	_, err = committer.Commit(context.Background(), all, testDay, "", nil, approveAll)
	require.NoError(t, err)

	// One delivery either way, with the same totals and item count
	require.Len(t, split.deliveries, 1)
	require.Len(t, combined.deliveries, 1)

	for _, d := range split.deliveries {
		require.Equal(t, 5, d.TotalItems)
		require.True(t, d.TotalValue.Equal(decimal.RequireFromString("54.00")))
	}
	for _, d := range combined.deliveries {
		require.Equal(t, 5, d.TotalItems)
		require.True(t, d.TotalValue.Equal(decimal.RequireFromString("54.00")))
	}
	require.Len(t, split.items, len(combined.items))
}
