// Package refdata serves the reference data the document forms pick
// from: customers, products, warehouses and the issuing company's
// profile. Upstream payloads are normalized at the gateway edge and
// cached per company.
package refdata

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backoffice/services/salesflow/internal/cache"
	"example.com/backoffice/services/salesflow/internal/gateway"
	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/repositories"
)

// Service loads and normalizes reference data with a cache-aside
// Redis layer. Cache failures degrade to database reads.
type Service struct {
	customerRepo  *repositories.CustomerRepository
	productRepo   *repositories.ProductRepository
	warehouseRepo *repositories.WarehouseRepository
	profileRepo   *repositories.CompanyProfileRepository
	cache         *cache.RedisCache
	ttl           time.Duration
}

// NewService creates a new reference data service
func NewService(db, readOnlyDB *gorm.DB, redisCache *cache.RedisCache, ttl time.Duration) *Service {
	return &Service{
		customerRepo:  repositories.NewCustomerRepository(db, readOnlyDB),
		productRepo:   repositories.NewProductRepository(db, readOnlyDB),
		warehouseRepo: repositories.NewWarehouseRepository(db, readOnlyDB),
		profileRepo:   repositories.NewCompanyProfileRepository(db, readOnlyDB),
		cache:         redisCache,
		ttl:           ttl,
	}
}

// Customers lists a company's customers in canonical shape.
func (s *Service) Customers(ctx context.Context, companyID string) ([]gateway.Customer, error) {
	key := cache.GetCustomersCacheKey(companyID)

	var cached []gateway.Customer
	if s.cache.Enabled() {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := s.customerRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	customers := make([]gateway.Customer, 0, len(rows))
	for _, row := range rows {
		customer, err := gateway.NormalizeCustomer(row.Payload)
		if err != nil {
			log.Warn().Err(err).Str("customer_id", row.ID.String()).Msg("Skipping malformed customer payload")
			continue
		}
		customers = append(customers, customer)
	}

	s.store(ctx, key, customers)
	return customers, nil
}

// Products lists a company's products in canonical shape.
func (s *Service) Products(ctx context.Context, companyID string) ([]gateway.Product, error) {
	key := cache.GetProductsCacheKey(companyID)

	var cached []gateway.Product
	if s.cache.Enabled() {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := s.productRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	products := make([]gateway.Product, 0, len(rows))
	for _, row := range rows {
		product, err := gateway.NormalizeProduct(row.Payload)
		if err != nil {
			log.Warn().Err(err).Str("product_id", row.ID.String()).Msg("Skipping malformed product payload")
			continue
		}
		products = append(products, product)
	}

	s.store(ctx, key, products)
	return products, nil
}

// Warehouses lists a company's warehouses in canonical shape.
func (s *Service) Warehouses(ctx context.Context, companyID string) ([]gateway.Warehouse, error) {
	key := cache.GetWarehousesCacheKey(companyID)

	var cached []gateway.Warehouse
	if s.cache.Enabled() {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := s.warehouseRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	warehouses := make([]gateway.Warehouse, 0, len(rows))
	for _, row := range rows {
		warehouse, err := gateway.NormalizeWarehouse(row.Payload)
		if err != nil {
			log.Warn().Err(err).Str("warehouse_id", row.ID.String()).Msg("Skipping malformed warehouse payload")
			continue
		}
		warehouses = append(warehouses, warehouse)
	}

	s.store(ctx, key, warehouses)
	return warehouses, nil
}

// CompanyInfo loads the issuing company's profile block. This is the
// single writer for the branding fields on a document.
func (s *Service) CompanyInfo(ctx context.Context, companyID string) (models.CompanyInfo, error) {
	key := cache.GetCompanyProfileCacheKey(companyID)

	var cached models.CompanyInfo
	if s.cache.Enabled() {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	row, err := s.profileRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return models.CompanyInfo{}, err
	}

	info, err := gateway.NormalizeCompanyInfo(row.Payload)
	if err != nil {
		return models.CompanyInfo{}, err
	}

	s.store(ctx, key, info)
	return info, nil
}

func (s *Service) store(ctx context.Context, key string, value interface{}) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache reference data")
	}
}
