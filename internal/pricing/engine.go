package pricing

// QuoteInput is everything needed to price one delivery method. The caller
// loads rule, bands and carrier limits from a single consistent read.
type QuoteInput struct {
	Rule                         *PricingRule
	Bands                        []WeightBand
	CartWeightKg                 float64
	CartValue                    float64
	CarrierMaxWeightKg           float64
	CarrierFreeShipmentThreshold *float64
}

// Quote prices a single method. The checks run in a fixed order and the first
// decisive one wins:
//
//  1. no rule, or a disabled rule: unavailable. There is no default price.
//  2. cart heavier than the carrier max weight: unavailable, even if free
//     shipping would otherwise apply.
//  3. cart value at or above the free shipment threshold: free. The rule's
//     own threshold takes precedence over the carrier-wide one.
//  4. the weight band table.
func Quote(in QuoteInput) (price float64, ok bool) {
	if in.Rule == nil || !in.Rule.Enabled {
		return 0, false
	}
	if in.CartWeightKg > in.CarrierMaxWeightKg {
		return 0, false
	}
	threshold := in.Rule.FreeShipmentThreshold
	if threshold == nil {
		threshold = in.CarrierFreeShipmentThreshold
	}
	if threshold != nil && in.CartValue >= *threshold {
		return 0, true
	}
	return ResolveWeightedPrice(in.CartWeightKg, in.Bands)
}
