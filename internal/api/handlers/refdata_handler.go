package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backoffice/services/salesflow/internal/refdata"
	"example.com/backoffice/services/salesflow/internal/tracing"
)

// RefdataHandler serves the reference data the document forms pick from
type RefdataHandler struct {
	refdataService *refdata.Service
	tracer         tracing.Tracer
}

// NewRefdataHandler creates a new reference data handler
func NewRefdataHandler(refdataService *refdata.Service, tracer tracing.Tracer) *RefdataHandler {
	return &RefdataHandler{
		refdataService: refdataService,
		tracer:         tracer,
	}
}

// HandleListCustomers lists a company's customers
func (h *RefdataHandler) HandleListCustomers(c *gin.Context) {
	companyID := c.Param("company_id")

	customers, err := h.refdataService.Customers(c, companyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("Failed to list customers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// HandleListProducts lists a company's products
func (h *RefdataHandler) HandleListProducts(c *gin.Context) {
	companyID := c.Param("company_id")

	products, err := h.refdataService.Products(c, companyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("Failed to list products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// HandleListWarehouses lists a company's warehouses
func (h *RefdataHandler) HandleListWarehouses(c *gin.Context) {
	companyID := c.Param("company_id")

	warehouses, err := h.refdataService.Warehouses(c, companyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("Failed to list warehouses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"warehouses": warehouses})
}

// HandleGetCompanyProfile returns the issuing company's profile block
func (h *RefdataHandler) HandleGetCompanyProfile(c *gin.Context) {
	companyID := c.Param("company_id")

	info, err := h.refdataService.CompanyInfo(c, companyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("Failed to get company profile")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// RegisterRoutes registers the handler's routes
func (h *RefdataHandler) RegisterRoutes(router *gin.Engine) {
	companies := router.Group("/companies/:company_id")
	companies.GET("/customers", h.HandleListCustomers)
	companies.GET("/products", h.HandleListProducts)
	companies.GET("/warehouses", h.HandleListWarehouses)
	companies.GET("/profile", h.HandleGetCompanyProfile)
}
