package gateway

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"example.com/backoffice/services/salesflow/internal/models"
)

// Reference-data payloads are written by several back-office modules
// with inconsistent key conventions (name vs item_name, price vs
// sale_price, and so on). All of that duck typing is absorbed here,
// at the gateway edge; everything behind this file sees one canonical
// shape per entity.

// Customer is the canonical customer shape.
type Customer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	GSTIN   string `json:"gstin"`
}

// Product is the canonical product shape.
type Product struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
	UOM         string          `json:"uom"`
	HSN         string          `json:"hsn"`
	SKU         string          `json:"sku"`
	Barcode     string          `json:"barcode"`
}

// Warehouse is the canonical warehouse shape.
type Warehouse struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func firstString(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func firstDecimal(raw map[string]json.RawMessage, keys ...string) decimal.Decimal {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		// Upstream writers emit numbers both quoted and bare.
		var d decimal.Decimal
		if err := json.Unmarshal(v, &d); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// NormalizeCustomer decodes an upstream customer payload into the
// canonical shape.
func NormalizeCustomer(payload []byte) (Customer, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Customer{}, errors.Wrap(err, "failed to decode customer payload")
	}
	return Customer{
		Name:    firstString(raw, "name", "customer_name", "company_name"),
		Address: firstString(raw, "address", "customer_address", "billing_address"),
		Email:   firstString(raw, "email", "customer_email"),
		Phone:   firstString(raw, "phone", "customer_phone", "mobile"),
		GSTIN:   firstString(raw, "gstin", "gst_no", "tax_number"),
	}, nil
}

// NormalizeProduct decodes an upstream product payload into the
// canonical shape.
func NormalizeProduct(payload []byte) (Product, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Product{}, errors.Wrap(err, "failed to decode product payload")
	}
	return Product{
		Name:        firstString(raw, "name", "item_name", "product_name"),
		Description: firstString(raw, "description", "item_description"),
		SalePrice:   firstDecimal(raw, "price", "sale_price", "rate"),
		TaxPercent:  firstDecimal(raw, "tax_percent", "tax", "gst_percent"),
		UOM:         firstString(raw, "uom", "unit"),
		HSN:         firstString(raw, "hsn", "hsn_code"),
		SKU:         firstString(raw, "sku", "item_code"),
		Barcode:     firstString(raw, "barcode"),
	}, nil
}

// NormalizeWarehouse decodes an upstream warehouse payload into the
// canonical shape.
func NormalizeWarehouse(payload []byte) (Warehouse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Warehouse{}, errors.Wrap(err, "failed to decode warehouse payload")
	}
	return Warehouse{
		Name:    firstString(raw, "name", "warehouse_name"),
		Address: firstString(raw, "address", "location"),
	}, nil
}

// NormalizeCompanyInfo decodes an upstream company profile payload
// into the aggregate's company_info block. This is the only writer of
// branding fields, which resolves the historical race between two
// endpoints populating the same block.
func NormalizeCompanyInfo(payload []byte) (models.CompanyInfo, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.CompanyInfo{}, errors.Wrap(err, "failed to decode company profile payload")
	}
	return models.CompanyInfo{
		CompanyName:    firstString(raw, "company_name", "name"),
		CompanyAddress: firstString(raw, "company_address", "address"),
		CompanyEmail:   firstString(raw, "company_email", "email"),
		CompanyPhone:   firstString(raw, "company_phone", "phone"),
		LogoURL:        firstString(raw, "logo_url", "logo"),
		BankName:       firstString(raw, "bank_name"),
		AccountNo:      firstString(raw, "account_no", "account_number"),
		AccountHolder:  firstString(raw, "account_holder", "account_holder_name"),
		IFSCCode:       firstString(raw, "ifsc_code", "ifsc"),
		Terms:          firstString(raw, "terms", "terms_and_conditions"),
	}, nil
}

// ProductToLineItem builds a line item draft from a catalog product.
// Amount is left zero; the totals calculator fills it on first edit.
func ProductToLineItem(p Product) models.LineItem {
	return models.LineItem{
		ItemName:    p.Name,
		Description: p.Description,
		Rate:        p.SalePrice,
		TaxPercent:  p.TaxPercent,
		UOM:         p.UOM,
		HSN:         p.HSN,
		SKU:         p.SKU,
		Barcode:     p.Barcode,
	}
}
