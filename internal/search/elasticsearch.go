package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/config"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexDelivery indexes a committed delivery so back-office tooling can find
// it by store or number. The delivery id doubles as the document id, so a
// merged delivery overwrites its earlier document instead of duplicating it.
func (c *ElasticClient) IndexDelivery(ctx context.Context, delivery *models.Delivery, storeName string) error {
	log.Info().Str("delivery_number", delivery.DeliveryNumber).Msg("indexing delivery")

	doc := map[string]interface{}{
		"id":              delivery.ID.String(),
		"delivery_number": delivery.DeliveryNumber,
		"store_id":        delivery.StoreID.String(),
		"store_name":      storeName,
		"production_date": delivery.ProductionDate.Format("2006-01-02"),
		"total_items":     delivery.TotalItems,
		"total_value":     delivery.TotalValue.StringFixed(2),
		"status":          delivery.Status,
	}
	if delivery.Notes != nil {
		doc["notes"] = *delivery.Notes
	}

	docJson, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delivery document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: delivery.ID.String(),
		Body:       bytes.NewReader(docJson),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch returned an error response: %s", res.Status())
	}

	return nil
}
