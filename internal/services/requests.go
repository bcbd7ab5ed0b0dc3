package services

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/metrics"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// RequestCreator persists production requests
type RequestCreator interface {
	Create(ctx context.Context, request *models.ProductionRequest) error
}

// ProductionRequestPayload is the message a store sends when asking for units
// to be produced
type ProductionRequestPayload struct {
	StoreID uuid.UUID `json:"store_id"`
	Notes   string    `json:"notes"`
	Items   []struct {
		ProductTypeID uuid.UUID `json:"salad_type_id"`
		Quantity      int       `json:"quantity"`
	} `json:"items"`
}

// RequestIntake persists store-submitted production requests arriving on the
// message queue. Requests land with status pending, which is what the demand
// aggregator counts.
type RequestIntake struct {
	requests RequestCreator
	products ProductTypeGetter
	metrics  *metrics.Metrics
}

// NewRequestIntake creates a new request intake
func NewRequestIntake(requests RequestCreator, products ProductTypeGetter, metricsCollector *metrics.Metrics) *RequestIntake {
	return &RequestIntake{
		requests: requests,
		products: products,
		metrics:  metricsCollector,
	}
}

// ProcessRequestMessage handles one message from the queue
func (s *RequestIntake) ProcessRequestMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var payload ProductionRequestPayload
	if err := json.Unmarshal(message.Body, &payload); err != nil {
		return errors.Wrap(err, "failed to unmarshal production request message")
	}

	return s.Ingest(ctx, &payload)
}

// Ingest validates and persists one production request
func (s *RequestIntake) Ingest(ctx context.Context, payload *ProductionRequestPayload) error {
	if len(payload.Items) == 0 {
		return errors.New("production request has no items")
	}

	request := &models.ProductionRequest{
		ID:     uuid.New(),
		Status: "pending",
		Items:  make([]models.ProductionRequestItem, 0, len(payload.Items)),
	}
	if payload.StoreID != uuid.Nil {
		storeID := payload.StoreID
		request.StoreID = &storeID
	}
	if payload.Notes != "" {
		notes := payload.Notes
		request.Notes = &notes
	}

	for _, item := range payload.Items {
		if item.Quantity <= 0 {
			return errors.Errorf("production request item for %s has non-positive quantity %d", item.ProductTypeID, item.Quantity)
		}
		if _, err := s.products.GetByID(ctx, item.ProductTypeID); err != nil {
			return errors.Wrap(err, "production request references unknown product type")
		}
		request.Items = append(request.Items, models.ProductionRequestItem{
			ID:            uuid.New(),
			RequestID:     request.ID,
			ProductTypeID: item.ProductTypeID,
			Quantity:      item.Quantity,
		})
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return errors.Wrap(err, "failed to persist production request")
	}

	log.Info().
		Str("request_id", request.ID.String()).
		Int("items", len(request.Items)).
		Msg("Production request ingested")

	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterRequestsIngested)
	}

	return nil
}
