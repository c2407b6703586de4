// Package carrier models the two carrier origins (statically configured and
// feed-fed) behind one capability view, and resolves which concrete record
// backs a quote.
package carrier

import (
	"slices"

	"shippingrates/internal/pricing"
)

// Carrier is the capability view the rate engine works with. The engine never
// needs to know whether a carrier is static or came from the feed.
type Carrier interface {
	Family() string
	// DynamicID is nil for static carriers.
	DynamicID() *int64
	Name() string
	ServesCountry(country string) bool
	Methods() []pricing.Method
	MaxWeightKg() float64
	FreeShipmentThreshold() *float64
	IsDeleted() bool
}

// Static is a carrier declared in configuration. It has no numeric id and is
// never deleted.
type Static struct {
	CarrierFamily     string
	DisplayName       string
	Countries         []string
	DeclaredMethods   []pricing.Method
	MaxWeight         float64
	FreeShipThreshold *float64
}

func (s *Static) Family() string    { return s.CarrierFamily }
func (s *Static) DynamicID() *int64 { return nil }
func (s *Static) Name() string      { return s.DisplayName }
func (s *Static) IsDeleted() bool   { return false }

// ServesCountry reports whether country is in the configured list. An empty
// list serves every country.
func (s *Static) ServesCountry(country string) bool {
	if len(s.Countries) == 0 {
		return true
	}
	country = pricing.NormalizeCountry(country)
	for _, c := range s.Countries {
		if pricing.NormalizeCountry(c) == country {
			return true
		}
	}
	return false
}

func (s *Static) Methods() []pricing.Method       { return slices.Clone(s.DeclaredMethods) }
func (s *Static) MaxWeightKg() float64            { return s.MaxWeight }
func (s *Static) FreeShipmentThreshold() *float64 { return s.FreeShipThreshold }

// Dynamic is a carrier record synchronized from the remote feed. Its single
// method is derived from the feed's pickup-point flag.
type Dynamic struct {
	ID            int64
	CarrierFamily string
	DisplayName   string
	CountryID     string
	MaxWeight     float64
	PickupPoints  bool
	Deleted       bool
}

func (d *Dynamic) Family() string { return d.CarrierFamily }

func (d *Dynamic) DynamicID() *int64 {
	id := d.ID
	return &id
}

func (d *Dynamic) Name() string    { return d.DisplayName }
func (d *Dynamic) IsDeleted() bool { return d.Deleted }

// ServesCountry requires an exact country match.
func (d *Dynamic) ServesCountry(country string) bool {
	return pricing.NormalizeCountry(d.CountryID) == pricing.NormalizeCountry(country)
}

// Method is the delivery method the feed record implies.
func (d *Dynamic) Method() pricing.Method {
	if d.PickupPoints {
		return pricing.PickupPointDelivery
	}
	return pricing.DirectAddressDelivery
}

func (d *Dynamic) Methods() []pricing.Method       { return []pricing.Method{d.Method()} }
func (d *Dynamic) MaxWeightKg() float64            { return d.MaxWeight }
func (d *Dynamic) FreeShipmentThreshold() *float64 { return nil }

func declares(c Carrier, m pricing.Method) bool {
	return slices.Contains(c.Methods(), m)
}
