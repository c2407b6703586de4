package pricing

import "strings"

// Method is a delivery method a carrier can offer for a destination.
type Method string

const (
	AddressDelivery       Method = "address_delivery"
	PickupPointDelivery   Method = "pickup_point_delivery"
	DirectAddressDelivery Method = "direct_address_delivery"
)

var allMethods = []Method{AddressDelivery, PickupPointDelivery, DirectAddressDelivery}

// ValidMethods returns the set of recognised delivery methods.
func ValidMethods() map[Method]struct{} {
	set := make(map[Method]struct{}, len(allMethods))
	for _, m := range allMethods {
		set[m] = struct{}{}
	}
	return set
}

// ParseMethod normalizes raw input into a Method. ok is false for unknown values.
func ParseMethod(raw string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allMethods {
		if m == known {
			return m, true
		}
	}
	return "", false
}

func (m Method) String() string { return string(m) }

// AddressValidation controls whether checkout has to validate the delivery address.
type AddressValidation string

const (
	AddressValidationNone     AddressValidation = "none"
	AddressValidationOptional AddressValidation = "optional"
	AddressValidationRequired AddressValidation = "required"
)

// ParseAddressValidation maps raw input to an AddressValidation; empty input means none.
func ParseAddressValidation(raw string) (AddressValidation, bool) {
	switch AddressValidation(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AddressValidationNone:
		return AddressValidationNone, true
	case AddressValidationOptional:
		return AddressValidationOptional, true
	case AddressValidationRequired:
		return AddressValidationRequired, true
	default:
		return "", false
	}
}
