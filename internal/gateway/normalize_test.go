package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProductAlternateKeys(t *testing.T) {
	// Two writers, two key conventions, one canonical result.
	legacy := []byte(`{"item_name":"Copper Wire","price":120.5,"tax":18,"unit":"kg","hsn_code":"7408"}`)
	modern := []byte(`{"name":"Copper Wire","sale_price":"120.5","tax_percent":18,"uom":"kg","hsn":"7408"}`)

	a, err := NormalizeProduct(legacy)
	require.NoError(t, err)
	b, err := NormalizeProduct(modern)
	require.NoError(t, err)

	require.Equal(t, "Copper Wire", a.Name)
	require.Equal(t, a.Name, b.Name)
	require.True(t, a.SalePrice.Equal(b.SalePrice), "%s vs %s", a.SalePrice, b.SalePrice)
	require.True(t, a.TaxPercent.Equal(decimal.NewFromInt(18)))
	require.Equal(t, "kg", b.UOM)
	require.Equal(t, "7408", b.HSN)
}

func TestNormalizeProductPreferredKeyWins(t *testing.T) {
	payload := []byte(`{"name":"Primary","item_name":"Secondary","price":10,"sale_price":99}`)

	p, err := NormalizeProduct(payload)
	require.NoError(t, err)
	require.Equal(t, "Primary", p.Name)
	require.True(t, p.SalePrice.Equal(decimal.NewFromInt(10)))
}

func TestNormalizeCustomer(t *testing.T) {
	payload := []byte(`{"customer_name":"Acme Traders","billing_address":"12 Market Road","mobile":"+91-11-5550100","gst_no":"07AAACA1234A1Z5"}`)

	c, err := NormalizeCustomer(payload)
	require.NoError(t, err)
	require.Equal(t, "Acme Traders", c.Name)
	require.Equal(t, "12 Market Road", c.Address)
	require.Equal(t, "+91-11-5550100", c.Phone)
	require.Equal(t, "07AAACA1234A1Z5", c.GSTIN)
}

func TestNormalizeCompanyInfo(t *testing.T) {
	payload := []byte(`{"name":"Salesflow Pvt Ltd","logo":"https://cdn.example/logo.png","account_number":"003412","ifsc":"HDFC0000123"}`)

	info, err := NormalizeCompanyInfo(payload)
	require.NoError(t, err)
	require.Equal(t, "Salesflow Pvt Ltd", info.CompanyName)
	require.Equal(t, "https://cdn.example/logo.png", info.LogoURL)
	require.Equal(t, "003412", info.AccountNo)
	require.Equal(t, "HDFC0000123", info.IFSCCode)
}

func TestNormalizeRejectsMalformedPayload(t *testing.T) {
	_, err := NormalizeCustomer([]byte(`not-json`))
	require.Error(t, err)
	_, err = NormalizeProduct([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestProductToLineItem(t *testing.T) {
	p := Product{Name: "Widget", SalePrice: decimal.NewFromInt(100), TaxPercent: decimal.NewFromInt(5), UOM: "pcs"}
	li := ProductToLineItem(p)
	require.Equal(t, "Widget", li.ItemName)
	require.True(t, li.Rate.Equal(decimal.NewFromInt(100)))
	require.True(t, li.Amount.IsZero())
}
