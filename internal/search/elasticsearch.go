package search

import (
	"bytes"
	"context"
	"encoding/json"

	"example.com/backoffice/services/salesflow/config"
	"example.com/backoffice/services/salesflow/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
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

// IndexDocument indexes a submitted workflow document in Elasticsearch
func (c *ElasticClient) IndexDocument(ctx context.Context, rec *models.DocumentRecord) error {
	log.Info().Str("document_id", rec.ID.String()).Msg("indexing document")

	agg, err := rec.Aggregate()
	if err != nil {
		return errors.Wrap(err, "failed to decode document for indexing")
	}

	doc := map[string]interface{}{
		"id":                rec.ID.String(),
		"company_id":        rec.CompanyID,
		"current_step":      rec.CurrentStep,
		"customer_name":     rec.CustomerName,
		"manual_invoice_no": rec.ManualInvoiceNo,
		"grand_total":       rec.GrandTotal.String(),
		"submitted_at":      rec.SubmittedAt,
		"quotation_no":      agg.Steps.Quotation.QuotationNo,
		"so_no":             agg.Steps.SalesOrder.SONo,
		"challan_no":        agg.Steps.DeliveryChallan.ChallanNo,
		"invoice_no":        agg.Steps.Invoice.InvoiceNo,
		"payment_no":        agg.Steps.Payment.PaymentNo,
		"payment_status":    agg.Steps.Payment.PaymentStatus,
	}

	items := make([]map[string]interface{}, 0, len(agg.Items))
	for _, item := range agg.Items {
		items = append(items, map[string]interface{}{
			"item_name": item.ItemName,
			"qty":       item.Qty.String(),
			"rate":      item.Rate.String(),
			"amount":    item.Amount.String(),
		})
	}
	doc["items"] = items

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document for indexing")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: rec.ID.String(),
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("document_id", rec.ID.String()).Msg("document indexed successfully")
	return nil
}

// SearchDocuments searches for documents with the given criteria
func (c *ElasticClient) SearchDocuments(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}
