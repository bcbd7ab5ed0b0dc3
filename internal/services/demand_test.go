package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// Mock repositories for testing

type MockProductTypeLister struct {
	mock.Mock
}

func (m *MockProductTypeLister) List(ctx context.Context) ([]models.ProductType, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductType), args.Error(1)
}

type MockRequestAggregateReader struct {
	mock.Mock
}

func (m *MockRequestAggregateReader) PendingRequestIDs(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockRequestAggregateReader) SumItemQuantities(ctx context.Context, productTypeID uuid.UUID, requestIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, productTypeID, requestIDs)
	return args.Int(0), args.Error(1)
}

type MockDeliveryAggregateReader struct {
	mock.Mock
}

func (m *MockDeliveryAggregateReader) IDsForDate(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockDeliveryAggregateReader) SumItemQuantities(ctx context.Context, productTypeID uuid.UUID, deliveryIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, productTypeID, deliveryIDs)
	return args.Int(0), args.Error(1)
}

type MockSummaryViewReader struct {
	mock.Mock
}

func (m *MockSummaryViewReader) DailySummaryView(ctx context.Context, day time.Time) ([]models.DailySummary, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DailySummary), args.Error(1)
}

var testDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestComputeDailySummaryUsesViewFastPath(t *testing.T) {
	productID := uuid.New()
	mockView := new(MockSummaryViewReader)
	mockView.On("DailySummaryView", mock.Anything, testDay).Return([]models.DailySummary{
		{ProductTypeID: productID, ProductName: "Caesar", TotalRequested: 20, TotalProduced: 5, Remaining: 15},
	}, nil)

	// The catalog mocks get no expectations; the fast path must not touch them
	aggregator := NewDemandAggregator(
		new(MockProductTypeLister),
		new(MockRequestAggregateReader),
		new(MockDeliveryAggregateReader),
		mockView, nil, nil, nil)

	summary, err := aggregator.ComputeDailySummary(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, "Caesar", summary[0].ProductName)
	require.Equal(t, 15, summary[0].Remaining)

	mockView.AssertExpectations(t)
}

func TestComputeDailySummaryFallsBackWhenViewFails(t *testing.T) {
	productID := uuid.New()
	requestID := uuid.New()
	deliveryID := uuid.New()

	mockView := new(MockSummaryViewReader)
	mockView.On("DailySummaryView", mock.Anything, testDay).Return(nil, errors.New("relation does not exist"))

	mockProducts := new(MockProductTypeLister)
	mockProducts.On("List", mock.Anything).Return([]models.ProductType{
		{ID: productID, Name: "Caesar", Emoji: "🥗"},
	}, nil)

	mockRequests := new(MockRequestAggregateReader)
	mockRequests.On("PendingRequestIDs", mock.Anything, testDay).Return([]uuid.UUID{requestID}, nil)
	mockRequests.On("SumItemQuantities", mock.Anything, productID, []uuid.UUID{requestID}).Return(20, nil)

	mockDeliveries := new(MockDeliveryAggregateReader)
	mockDeliveries.On("IDsForDate", mock.Anything, testDay).Return([]uuid.UUID{deliveryID}, nil)
	mockDeliveries.On("SumItemQuantities", mock.Anything, productID, []uuid.UUID{deliveryID}).Return(5, nil)

	aggregator := NewDemandAggregator(mockProducts, mockRequests, mockDeliveries, mockView, nil, nil, nil)

	summary, err := aggregator.ComputeDailySummary(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 20, summary[0].TotalRequested)
	require.Equal(t, 5, summary[0].TotalProduced)
	require.Equal(t, 15, summary[0].Remaining)

	mockView.AssertExpectations(t)
	mockProducts.AssertExpectations(t)
	mockRequests.AssertExpectations(t)
	mockDeliveries.AssertExpectations(t)
}

func TestFallbackEmptyIDSetsSumToZeroWithoutQuerying(t *testing.T) {
	productID := uuid.New()

	mockProducts := new(MockProductTypeLister)
	mockProducts.On("List", mock.Anything).Return([]models.ProductType{
		{ID: productID, Name: "Caesar"},
	}, nil)

	// No pending requests and no deliveries today. SumItemQuantities must not
	// be called with an empty filter.
	mockRequests := new(MockRequestAggregateReader)
	mockRequests.On("PendingRequestIDs", mock.Anything, testDay).Return([]uuid.UUID{}, nil)

	mockDeliveries := new(MockDeliveryAggregateReader)
	mockDeliveries.On("IDsForDate", mock.Anything, testDay).Return([]uuid.UUID{}, nil)

	aggregator := NewDemandAggregator(mockProducts, mockRequests, mockDeliveries, nil, nil, nil, nil)

	summary, err := aggregator.ComputeDailySummary(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 0, summary[0].TotalRequested)
	require.Equal(t, 0, summary[0].TotalProduced)
	require.Equal(t, 0, summary[0].Remaining)

	mockRequests.AssertNotCalled(t, "SumItemQuantities", mock.Anything, mock.Anything, mock.Anything)
	mockDeliveries.AssertNotCalled(t, "SumItemQuantities", mock.Anything, mock.Anything, mock.Anything)
}

func TestFallbackSkipsProductWhoseLookupsFail(t *testing.T) {
	goodID := uuid.New()
	badID := uuid.New()
	requestID := uuid.New()

	mockProducts := new(MockProductTypeLister)
	mockProducts.On("List", mock.Anything).Return([]models.ProductType{
		{ID: badID, Name: "Greek"},
		{ID: goodID, Name: "Caesar"},
	}, nil)

	mockRequests := new(MockRequestAggregateReader)
	mockRequests.On("PendingRequestIDs", mock.Anything, testDay).Return([]uuid.UUID{requestID}, nil)
	mockRequests.On("SumItemQuantities", mock.Anything, badID, mock.Anything).Return(0, errors.New("timeout"))
	mockRequests.On("SumItemQuantities", mock.Anything, goodID, mock.Anything).Return(10, nil)

	mockDeliveries := new(MockDeliveryAggregateReader)
	mockDeliveries.On("IDsForDate", mock.Anything, testDay).Return([]uuid.UUID{}, nil)

	aggregator := NewDemandAggregator(mockProducts, mockRequests, mockDeliveries, nil, nil, nil, nil)

	summary, err := aggregator.ComputeDailySummary(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, "Caesar", summary[0].ProductName)
	require.Equal(t, 10, summary[0].TotalRequested)
}

func TestFallbackAbortsWhenCatalogUnavailable(t *testing.T) {
	mockProducts := new(MockProductTypeLister)
	mockProducts.On("List", mock.Anything).Return(nil, errors.New("connection refused"))

	aggregator := NewDemandAggregator(mockProducts,
		new(MockRequestAggregateReader),
		new(MockDeliveryAggregateReader),
		nil, nil, nil, nil)

	_, err := aggregator.ComputeDailySummary(context.Background(), testDay)
	require.Error(t, err)
}

func TestSummarySortedByRemainingDescending(t *testing.T) {
	mockView := new(MockSummaryViewReader)
	mockView.On("DailySummaryView", mock.Anything, testDay).Return([]models.DailySummary{
		{ProductName: "Done", TotalRequested: 20, TotalProduced: 20, Remaining: 0},
		{ProductName: "Over", TotalRequested: 5, TotalProduced: 8, Remaining: -3},
		{ProductName: "Behind", TotalRequested: 20, TotalProduced: 5, Remaining: 15},
	}, nil)

	aggregator := NewDemandAggregator(nil, nil, nil, mockView, nil, nil, nil)

	summary, err := aggregator.ComputeDailySummary(context.Background(), testDay)
	require.NoError(t, err)
	require.Equal(t, []string{"Behind", "Done", "Over"}, []string{
		summary[0].ProductName, summary[1].ProductName, summary[2].ProductName,
	})

	// Over-delivery stays negative, never clamped
	require.Equal(t, -3, summary[2].Remaining)
}
