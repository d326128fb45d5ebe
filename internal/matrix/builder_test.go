package matrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/models"
)

func shirtProduct() *models.SourceProduct {
	return &models.SourceProduct{
		ID:    "prod-1",
		SKU:   "SHIRT",
		Label: "Shirt",
		Axes: []models.VariantAxis{
			{Name: "Color", Values: []string{"Red", "Blue"}},
			{Name: "Size", Values: []string{"S", "M"}},
		},
		Variants: []models.SourceVariant{
			{ID: "v1", SKU: "SHIRT-RED-S", Attributes: map[string]string{"Color": "Red", "Size": "S"}},
			{ID: "v2", SKU: "SHIRT-RED-M", Attributes: map[string]string{"Color": "Red", "Size": "M"}},
			{ID: "v3", SKU: "SHIRT-BLUE-S", Attributes: map[string]string{"Color": "Blue", "Size": "S"}},
		},
	}
}

func TestBuildExpandsFullCartesianProduct(t *testing.T) {
	m, err := Build(shirtProduct(), 0)
	require.NoError(t, err)

	assert.Len(t, m.Entries, 4)

	// The last axis spins fastest.
	assert.Equal(t, "Red / S", m.Entries[0].Cell.String())
	assert.Equal(t, "Red / M", m.Entries[1].Cell.String())
	assert.Equal(t, "Blue / S", m.Entries[2].Cell.String())
	assert.Equal(t, "Blue / M", m.Entries[3].Cell.String())
}

func TestBuildMarksMissingCombinations(t *testing.T) {
	m, err := Build(shirtProduct(), 0)
	require.NoError(t, err)

	// Blue/M has no source variant.
	assert.False(t, m.Entries[0].Missing)
	assert.False(t, m.Entries[1].Missing)
	assert.False(t, m.Entries[2].Missing)
	assert.True(t, m.Entries[3].Missing)
	assert.Empty(t, m.Entries[3].SKU)

	assert.Equal(t, 1, m.MissingCount())
	assert.Len(t, m.Eligible(), 3)
}

func TestBuildJoinsVariantsBySKU(t *testing.T) {
	m, err := Build(shirtProduct(), 0)
	require.NoError(t, err)

	assert.Equal(t, "SHIRT-RED-S", m.Entries[0].SKU)
	assert.Equal(t, "SHIRT-RED-M", m.Entries[1].SKU)
	assert.Equal(t, "SHIRT-BLUE-S", m.Entries[2].SKU)
}

func TestBuildWithoutAxesYieldsSingleCell(t *testing.T) {
	p := &models.SourceProduct{ID: "prod-2", SKU: "SIMPLE"}

	m, err := Build(p, 0)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "SIMPLE", m.Entries[0].SKU)
	assert.False(t, m.Entries[0].Missing)
}

func TestBuildThreeAxisCellCount(t *testing.T) {
	p := &models.SourceProduct{
		ID:  "prod-3",
		SKU: "CUBE",
		Axes: []models.VariantAxis{
			{Name: "A", Values: []string{"1", "2", "3"}},
			{Name: "B", Values: []string{"x", "y"}},
			{Name: "C", Values: []string{"p", "q", "r", "s"}},
		},
	}

	m, err := Build(p, 0)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 3*2*4)
}

func TestBuildRejectsOversizedMatrixBeforeGeneration(t *testing.T) {
	p := &models.SourceProduct{
		ID:  "prod-4",
		SKU: "BIG",
		Axes: []models.VariantAxis{
			{Name: "A", Values: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}},
			{Name: "B", Values: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}},
			{Name: "C", Values: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}},
		},
	}

	_, err := Build(p, 250)
	require.Error(t, err)

	var sizeErr *models.MatrixSizeExceededError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, "prod-4", sizeErr.ProductID)
	assert.Equal(t, 250, sizeErr.Limit)
}

func TestBuildRejectsEmptyAxis(t *testing.T) {
	p := &models.SourceProduct{
		ID:  "prod-5",
		SKU: "EMPTY",
		Axes: []models.VariantAxis{
			{Name: "Color", Values: nil},
		},
	}

	_, err := Build(p, 0)
	var mapErr *models.MappingError
	require.True(t, errors.As(err, &mapErr))
}

func TestBuildExcludesVariantMissingAxisValue(t *testing.T) {
	p := shirtProduct()
	p.Variants = append(p.Variants, models.SourceVariant{
		ID:  "v4",
		SKU: "SHIRT-ORPHAN",
		// No Size value, cannot be placed in the matrix.
		Attributes: map[string]string{"Color": "Blue"},
	})

	m, err := Build(p, 0)
	require.NoError(t, err)
	for _, e := range m.Entries {
		assert.NotEqual(t, "SHIRT-ORPHAN", e.SKU)
	}
}

func TestValidateVariants(t *testing.T) {
	p := shirtProduct()
	assert.Empty(t, ValidateVariants(p))

	p.Variants = append(p.Variants,
		models.SourceVariant{ID: "v5", Attributes: map[string]string{"Color": "Red", "Size": "S"}},
		models.SourceVariant{ID: "v6", SKU: "SHIRT-RED-S", Attributes: map[string]string{"Color": "Red", "Size": "S"}},
		models.SourceVariant{ID: "v7", SKU: "SHIRT-BLUE-X", Attributes: map[string]string{"Color": "Blue"}},
	)

	problems := ValidateVariants(p)
	require.Len(t, problems, 3)
	assert.Contains(t, problems[0], "no SKU")
	assert.Contains(t, problems[1], "duplicate")
	assert.Contains(t, problems[2], "missing value for axis Size")
}
