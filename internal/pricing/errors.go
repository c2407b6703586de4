package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCountry is returned when a save would create a second enabled
	// rule for the same carrier, carrier id, country and method.
	ErrDuplicateCountry = errors.New("duplicate_country")
	// ErrInvalidMaxWeight is returned when a band table has colliding ceilings.
	ErrInvalidMaxWeight = errors.New("invalid_max_weight")
	// ErrPricingRuleNotFound is returned when an operation targets a missing rule.
	ErrPricingRuleNotFound = errors.New("pricing_rule_not_found")
	// ErrWeightRuleMissing is returned when a rule is saved without weight bands.
	ErrWeightRuleMissing = errors.New("weight_rule_missing")
	// ErrInvalidRule covers malformed rule input (unknown method, empty country, ...).
	ErrInvalidRule = errors.New("invalid_rule")
)

// ValidationError carries the carrier/method context of a rejected save.
// It unwraps to one of the sentinel errors above.
type ValidationError struct {
	Kind      error
	Family    string
	Method    Method
	CountryID string
	Detail    string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%v: carrier=%s method=%s country=%s", e.Kind, e.Family, e.Method, e.CountryID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func newValidationError(kind error, rule PricingRule, detail string) *ValidationError {
	return &ValidationError{
		Kind:      kind,
		Family:    rule.CarrierFamily,
		Method:    rule.Method,
		CountryID: NormalizeCountry(rule.CountryID),
		Detail:    detail,
	}
}

// DuplicateCountryError wraps ErrDuplicateCountry with the rule context.
func DuplicateCountryError(rule PricingRule) error {
	return newValidationError(ErrDuplicateCountry, rule, "an enabled rule already exists")
}
