package pricing

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// PricingRule scopes a weight band table to one carrier, country and method.
type PricingRule struct {
	ID                    uuid.UUID
	CarrierFamily         string
	DynamicCarrierID      *int64
	CountryID             string
	Method                Method
	Enabled               bool
	FreeShipmentThreshold *float64
	MaxCOD                *float64
	AddressValidation     AddressValidation
}

// Key returns the uniqueness key of the rule.
func (r PricingRule) Key() RuleKey {
	return RuleKey{
		CarrierFamily:    r.CarrierFamily,
		DynamicCarrierID: r.DynamicCarrierID,
		CountryID:        NormalizeCountry(r.CountryID),
		Method:           r.Method,
	}
}

// WeightBand is one tier of a rule's price table. A nil ceiling is uncapped.
type WeightBand struct {
	CeilingWeightKg *float64
	Price           float64
}

// RuleKey identifies the slot an enabled rule occupies. At most one enabled
// rule may exist per key.
type RuleKey struct {
	CarrierFamily    string
	DynamicCarrierID *int64
	CountryID        string
	Method           Method
}

// Equal compares keys by value, including the optional carrier id.
func (k RuleKey) Equal(o RuleKey) bool {
	if k.CarrierFamily != o.CarrierFamily || k.Method != o.Method {
		return false
	}
	if NormalizeCountry(k.CountryID) != NormalizeCountry(o.CountryID) {
		return false
	}
	switch {
	case k.DynamicCarrierID == nil && o.DynamicCarrierID == nil:
		return true
	case k.DynamicCarrierID == nil || o.DynamicCarrierID == nil:
		return false
	default:
		return *k.DynamicCarrierID == *o.DynamicCarrierID
	}
}

// String renders the key for logs and map lookups.
func (k RuleKey) String() string {
	id := "-"
	if k.DynamicCarrierID != nil {
		id = strconv.FormatInt(*k.DynamicCarrierID, 10)
	}
	return k.CarrierFamily + "/" + id + "/" + NormalizeCountry(k.CountryID) + "/" + string(k.Method)
}

// NormalizeCountry uppercases and trims an ISO country code.
func NormalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

// SortBands returns a copy of bands ordered by ceiling ascending, uncapped last.
func SortBands(bands []WeightBand) []WeightBand {
	out := make([]WeightBand, len(bands))
	copy(out, bands)
	sort.SliceStable(out, func(i, j int) bool {
		return ceilingOf(out[i]) < ceilingOf(out[j])
	})
	return out
}
