package rates_test

import (
	"testing"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/rates"
	"github.com/stretchr/testify/assert"
)

func variant(weight, l, w, h int) *domain.ProductVariant {
	return &domain.ProductVariant{WeightGrams: weight, LengthCm: l, WidthCm: w, HeightCm: h}
}

func TestEstimateDimensions_SingleItem(t *testing.T) {
	dims := rates.EstimateDimensions([]rates.PackedItem{
		{Variant: variant(500, 30, 20, 10), Quantity: 1},
	})

	assert.Equal(t, 500, dims.WeightGrams)
	// No side shrinks below the largest single item.
	assert.GreaterOrEqual(t, dims.LengthCm, 30)
	assert.GreaterOrEqual(t, dims.WidthCm, 20)
	assert.GreaterOrEqual(t, dims.HeightCm, 10)
}

func TestEstimateDimensions_VolumeGrowsWithQuantity(t *testing.T) {
	one := rates.EstimateDimensions([]rates.PackedItem{
		{Variant: variant(200, 20, 15, 10), Quantity: 1},
	})
	five := rates.EstimateDimensions([]rates.PackedItem{
		{Variant: variant(200, 20, 15, 10), Quantity: 5},
	})

	assert.Equal(t, 1000, five.WeightGrams)
	volOne := one.LengthCm * one.WidthCm * one.HeightCm
	volFive := five.LengthCm * five.WidthCm * five.HeightCm
	assert.Greater(t, volFive, volOne)
	// Slack-adjusted item volume always fits.
	assert.GreaterOrEqual(t, float64(volFive), 20.0*15*10*5*1.2)
}

func TestEstimateDimensions_WeightFloor(t *testing.T) {
	dims := rates.EstimateDimensions(nil)
	assert.Equal(t, 1, dims.WeightGrams)
	assert.Zero(t, dims.LengthCm)
}

func TestEstimateDimensions_MixedItems(t *testing.T) {
	dims := rates.EstimateDimensions([]rates.PackedItem{
		{Variant: variant(1000, 40, 30, 5), Quantity: 1},
		{Variant: variant(100, 10, 10, 25), Quantity: 2},
	})

	assert.Equal(t, 1200, dims.WeightGrams)
	assert.GreaterOrEqual(t, dims.LengthCm, 40)
	assert.GreaterOrEqual(t, dims.WidthCm, 30)
	assert.GreaterOrEqual(t, dims.HeightCm, 25)
}

func TestEstimateDimensions_SkipsEmptyEntries(t *testing.T) {
	dims := rates.EstimateDimensions([]rates.PackedItem{
		{Variant: nil, Quantity: 3},
		{Variant: variant(100, 10, 10, 10), Quantity: 0},
		{Variant: variant(250, 12, 8, 6), Quantity: 1},
	})

	assert.Equal(t, 250, dims.WeightGrams)
	assert.GreaterOrEqual(t, dims.LengthCm, 12)
}
