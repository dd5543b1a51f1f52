// Package rates builds shipment requests, shops carrier rate quotes, and
// computes the insurance split.
package rates

import (
	"math"

	"github.com/parcelforge/fulfillment/internal/domain"
)

// PackedItem is one variant and the quantity of it going into the package.
type PackedItem struct {
	Variant  *domain.ProductVariant
	Quantity int
}

// Dimensions is an estimated package: weight in grams, sides in centimetres.
type Dimensions struct {
	WeightGrams int
	LengthCm    int
	WidthCm     int
	HeightCm    int
}

// packingSlack inflates total item volume to account for void fill.
const packingSlack = 1.2

// EstimateDimensions derives a single package estimate from the items packed
// into it. The estimate respects the largest single item's footprint while
// still accounting for total volume: the longest axes win, and the remaining
// axis is derived from the slack-adjusted volume.
func EstimateDimensions(items []PackedItem) Dimensions {
	var (
		weight    int
		volume    float64
		maxLength float64
		maxWidth  float64
		maxHeight float64
	)

	for _, item := range items {
		v := item.Variant
		if v == nil || item.Quantity <= 0 {
			continue
		}
		weight += v.WeightGrams * item.Quantity
		volume += float64(v.LengthCm*v.WidthCm*v.HeightCm*item.Quantity) * packingSlack
		maxLength = math.Max(maxLength, float64(v.LengthCm))
		maxWidth = math.Max(maxWidth, float64(v.WidthCm))
		maxHeight = math.Max(maxHeight, float64(v.HeightCm))
	}

	if weight < 1 {
		weight = 1
	}
	if maxLength == 0 || maxWidth == 0 {
		return Dimensions{WeightGrams: weight}
	}

	height := math.Max(math.Cbrt(volume/(maxLength*maxWidth)), maxHeight)
	width := math.Max(volume/(maxLength*height), maxWidth)
	length := math.Max(math.Sqrt(volume/(width*height)), maxLength)

	return Dimensions{
		WeightGrams: weight,
		LengthCm:    int(math.Ceil(length)),
		WidthCm:     int(math.Ceil(width)),
		HeightCm:    int(math.Ceil(height)),
	}
}
