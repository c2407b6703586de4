package pricing

import "math"

// ResolveWeightedPrice picks the band with the smallest ceiling that still
// covers weightKg and returns its price. Non-positive weights always resolve
// to the lowest band. ok is false when no band covers the weight, which means
// the method is unavailable, not free.
//
// The carrier-level max weight is deliberately not consulted here.
func ResolveWeightedPrice(weightKg float64, bands []WeightBand) (price float64, ok bool) {
	if len(bands) == 0 {
		return 0, false
	}
	sorted := SortBands(bands)
	if weightKg <= 0 {
		return sorted[0].Price, true
	}
	for _, b := range sorted {
		if ceilingOf(b) >= weightKg {
			return b.Price, true
		}
	}
	return 0, false
}

func ceilingOf(b WeightBand) float64 {
	if b.CeilingWeightKg == nil {
		return math.Inf(1)
	}
	return *b.CeilingWeightKg
}
