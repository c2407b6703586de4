package pricing

import (
	"fmt"
	"math"
)

// ceilingPrecision matches the storage scale of weight_bands.ceiling_weight_kg.
const ceilingPrecision = 1e4

// ValidateMaxWeights reports whether the ceilings of a band table are
// unambiguous. Ceilings are compared after rounding to 4 decimal places, so 2
// and 2.00001 collide. At most one uncapped (nil) band is allowed.
func ValidateMaxWeights(bands []WeightBand) bool {
	seen := make(map[float64]struct{}, len(bands))
	uncapped := 0
	for _, b := range bands {
		if b.CeilingWeightKg == nil {
			uncapped++
			if uncapped > 1 {
				return false
			}
			continue
		}
		v := *b.CeilingWeightKg
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		rounded := roundCeiling(v)
		if _, dup := seen[rounded]; dup {
			return false
		}
		seen[rounded] = struct{}{}
	}
	return true
}

func roundCeiling(v float64) float64 {
	r := math.Round(v*ceilingPrecision) / ceilingPrecision
	if r == 0 {
		return 0 // fold -0
	}
	return r
}

// ValidateRuleInput checks a rule and its bands before they are persisted.
// The returned error unwraps to ErrInvalidRule, ErrWeightRuleMissing or
// ErrInvalidMaxWeight.
func ValidateRuleInput(rule PricingRule, bands []WeightBand) error {
	if rule.CarrierFamily == "" {
		return newValidationError(ErrInvalidRule, rule, "carrier family required")
	}
	if len(NormalizeCountry(rule.CountryID)) != 2 {
		return newValidationError(ErrInvalidRule, rule, "country must be a 2-letter ISO code")
	}
	if _, ok := ValidMethods()[rule.Method]; !ok {
		return newValidationError(ErrInvalidRule, rule, "unknown method")
	}
	if _, ok := ParseAddressValidation(string(rule.AddressValidation)); !ok {
		return newValidationError(ErrInvalidRule, rule, "unknown address validation")
	}
	if rule.FreeShipmentThreshold != nil && *rule.FreeShipmentThreshold < 0 {
		return newValidationError(ErrInvalidRule, rule, "free shipment threshold must not be negative")
	}
	if rule.MaxCOD != nil && *rule.MaxCOD < 0 {
		return newValidationError(ErrInvalidRule, rule, "max cod must not be negative")
	}
	if len(bands) == 0 {
		return newValidationError(ErrWeightRuleMissing, rule, "at least one weight band is required")
	}
	for i, b := range bands {
		if b.Price < 0 || math.IsNaN(b.Price) {
			return newValidationError(ErrInvalidRule, rule, fmt.Sprintf("band %d: price must not be negative", i))
		}
		if b.CeilingWeightKg != nil && *b.CeilingWeightKg <= 0 {
			return newValidationError(ErrInvalidMaxWeight, rule, fmt.Sprintf("band %d: ceiling must be positive", i))
		}
	}
	if !ValidateMaxWeights(bands) {
		return newValidationError(ErrInvalidMaxWeight, rule, "weight ceilings must be unique")
	}
	return nil
}
