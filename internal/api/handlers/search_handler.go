package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backoffice/services/salesflow/internal/search"
	"example.com/backoffice/services/salesflow/internal/tracing"
)

// SearchHandler serves full-text search over submitted documents
type SearchHandler struct {
	elasticClient *search.ElasticClient
	tracer        tracing.Tracer
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(elasticClient *search.ElasticClient, tracer tracing.Tracer) *SearchHandler {
	return &SearchHandler{
		elasticClient: elasticClient,
		tracer:        tracer,
	}
}

// HandleSearchDocuments searches submitted documents. The company id
// is always required; q matches across customer and reference fields.
func (h *SearchHandler) HandleSearchDocuments(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-documents")
	defer h.tracer.EndTransaction(txn)

	if h.elasticClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not available"})
		return
	}

	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
		return
	}

	size := 25
	if raw := c.Query("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			size = parsed
		}
	}

	must := []map[string]interface{}{
		{"term": map[string]interface{}{"company_id": companyID}},
	}
	if q := c.Query("q"); q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"customer_name", "manual_invoice_no", "invoice_no", "quotation_no", "so_no", "items.item_name"},
			},
		})
	}

	query := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []map[string]interface{}{
			{"submitted_at": map[string]interface{}{"order": "desc"}},
		},
	}

	docs, err := h.elasticClient.SearchDocuments(c, query)
	if err != nil {
		log.Error().Err(err).Msg("Document search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

// RegisterRoutes registers the handler's routes
func (h *SearchHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/documents/search", h.HandleSearchDocuments)
}
