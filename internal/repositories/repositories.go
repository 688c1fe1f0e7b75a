package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backoffice/services/salesflow/internal/models"
)

// DocumentRepository provides access to persisted workflow documents
type DocumentRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DocumentRepository {
	return &DocumentRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create inserts a new document record
func (r *DocumentRepository) Create(ctx context.Context, rec *models.DocumentRecord) error {
	// Use write DB for writes
	return r.db.WithContext(ctx).Create(rec).Error
}

// Update saves the full state of an existing document record
func (r *DocumentRepository) Update(ctx context.Context, rec *models.DocumentRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.DocumentRecord{}).
		Where("id = ?", rec.ID).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(rec)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update document record")
	}
	if result.RowsAffected == 0 {
		return errors.New("no document record updated")
	}
	return nil
}

// GetByID gets a document record by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentRecord, error) {
	var rec models.DocumentRecord
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get document record by ID")
	}
	return &rec, nil
}

// ListUnindexed lists submitted documents not yet indexed for search
func (r *DocumentRepository) ListUnindexed(ctx context.Context, limit int) ([]models.DocumentRecord, error) {
	var recs []models.DocumentRecord
	err := r.readOnlyDB.WithContext(ctx).
		Where("submitted = ? AND search_indexed = ?", true, false).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unindexed documents")
	}
	return recs, nil
}

// MarkIndexed marks a document as indexed in Elasticsearch
func (r *DocumentRepository) MarkIndexed(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.DocumentRecord{}).
		Where("id = ?", id).
		Update("search_indexed", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark document as indexed")
	}
	if result.RowsAffected == 0 {
		return errors.New("no document record updated")
	}
	return nil
}

// CustomerRepository provides access to customer master data
type CustomerRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CustomerRepository {
	return &CustomerRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListByCompany lists customers belonging to a company
func (r *CustomerRepository) ListByCompany(ctx context.Context, companyID string) ([]models.CustomerRow, error) {
	var rows []models.CustomerRow
	err := r.readOnlyDB.WithContext(ctx).Where("company_id = ?", companyID).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list customers")
	}
	return rows, nil
}

// ProductRepository provides access to product master data
type ProductRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProductRepository {
	return &ProductRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListByCompany lists products belonging to a company
func (r *ProductRepository) ListByCompany(ctx context.Context, companyID string) ([]models.ProductRow, error) {
	var rows []models.ProductRow
	err := r.readOnlyDB.WithContext(ctx).Where("company_id = ?", companyID).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	return rows, nil
}

// WarehouseRepository provides access to warehouse master data
type WarehouseRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewWarehouseRepository creates a new warehouse repository
func NewWarehouseRepository(db *gorm.DB, readOnlyDB *gorm.DB) *WarehouseRepository {
	return &WarehouseRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListByCompany lists warehouses belonging to a company
func (r *WarehouseRepository) ListByCompany(ctx context.Context, companyID string) ([]models.WarehouseRow, error) {
	var rows []models.WarehouseRow
	err := r.readOnlyDB.WithContext(ctx).Where("company_id = ?", companyID).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list warehouses")
	}
	return rows, nil
}

// CompanyProfileRepository provides access to company profile data
type CompanyProfileRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCompanyProfileRepository creates a new company profile repository
func NewCompanyProfileRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CompanyProfileRepository {
	return &CompanyProfileRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByCompanyID gets the profile row for a company
func (r *CompanyProfileRepository) GetByCompanyID(ctx context.Context, companyID string) (*models.CompanyProfileRow, error) {
	var row models.CompanyProfileRow
	err := r.readOnlyDB.WithContext(ctx).Where("company_id = ?", companyID).First(&row).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get company profile")
	}
	return &row, nil
}
