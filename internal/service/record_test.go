package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/matrix"
	"catalog-sync/internal/models"
)

func TestProductRecordConvertsCentsToDecimal(t *testing.T) {
	p := &models.SourceProduct{
		ID:         "p-1",
		SKU:        "A",
		Label:      "Alpha",
		PriceCents: 1299,
		Attributes: map[string]interface{}{"color": "blue"},
		Assets:     []models.Asset{{URL: "https://cdn.example.com/a.jpg", Filename: "a.jpg"}},
	}

	record := productRecord(p)
	assert.Equal(t, 12.99, record["price"])
	assert.Equal(t, "Alpha", record["label"])

	attrs, ok := record["attributes"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "blue", attrs["color"])

	assets, ok := record["assets"].([]interface{})
	require.True(t, ok)
	require.Len(t, assets, 1)
}

func TestVariantFieldsForAxisCell(t *testing.T) {
	p := &models.SourceProduct{
		ID: "p-1", SKU: "SHIRT", Label: "Shirt", PriceCents: 2000,
		Axes: []models.VariantAxis{
			{Name: "Color", Values: []string{"Red"}},
			{Name: "Size", Values: []string{"S"}},
		},
		Variants: []models.SourceVariant{
			{ID: "v1", SKU: "SHIRT-RED-S", PriceCents: 2500, Inventory: 7,
				Attributes: map[string]string{"Color": "Red", "Size": "S"}},
		},
	}

	m, err := matrix.Build(p, 0)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	fields := variantFields(p, m, m.Entries[0])
	assert.Equal(t, "SHIRT-RED-S", fields["sku"])
	assert.Equal(t, "Shirt Red / S", fields["name"])
	assert.Equal(t, "Red", fields["color"])
	assert.Equal(t, "S", fields["size"])
	assert.Equal(t, 25.0, fields["price"])
	assert.Equal(t, 7.0, fields["inventory"])
}

func TestVariantFieldsFallsBackToProductPrice(t *testing.T) {
	p := &models.SourceProduct{ID: "p-1", SKU: "SIMPLE", Label: "Simple", PriceCents: 500}

	m, err := matrix.Build(p, 0)
	require.NoError(t, err)

	fields := variantFields(p, m, m.Entries[0])
	assert.Equal(t, "Simple", fields["name"])
	assert.Equal(t, 5.0, fields["price"])
	_, hasInventory := fields["inventory"]
	assert.False(t, hasInventory)
}

func TestDefaultDocumentIsValid(t *testing.T) {
	assert.NoError(t, DefaultDocument().Validate())
}
