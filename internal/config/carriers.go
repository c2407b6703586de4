package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"shippingrates/internal/carrier"
	"shippingrates/internal/pricing"
)

// CarrierFile is the YAML document declaring static carriers and the
// administrator's method restrictions.
//
//	carriers:
//	  - family: home_delivery
//	    name: Home delivery
//	    countries: [CZ, SK]
//	    methods: [address_delivery]
//	    max_weight_kg: 30
//	    free_shipment_threshold: 2500
//	allowed_methods:
//	  feed: [pickup_point_delivery]
type CarrierFile struct {
	Carriers       []StaticCarrier     `yaml:"carriers"`
	AllowedMethods map[string][]string `yaml:"allowed_methods"`
}

type StaticCarrier struct {
	Family                string   `yaml:"family"`
	Name                  string   `yaml:"name"`
	Countries             []string `yaml:"countries"`
	Methods               []string `yaml:"methods"`
	MaxWeightKg           float64  `yaml:"max_weight_kg"`
	FreeShipmentThreshold *float64 `yaml:"free_shipment_threshold"`
}

// Carriers is the parsed form of a CarrierFile.
type Carriers struct {
	Static  []carrier.Static
	Allowed map[string][]pricing.Method
}

// LoadCarriers reads path. A missing file yields an empty configuration so
// the service can run on feed carriers alone.
func LoadCarriers(path string) (Carriers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Carriers{Allowed: map[string][]pricing.Method{}}, nil
		}
		return Carriers{}, err
	}
	return ParseCarriers(data)
}

// ParseCarriers decodes a carrier document. Unknown method names are kept in
// the administrator lists (reconciliation drops them) but rejected on
// carrier declarations, where they are always a typo.
func ParseCarriers(data []byte) (Carriers, error) {
	var file CarrierFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Carriers{}, fmt.Errorf("parse carriers: %w", err)
	}

	out := Carriers{Allowed: make(map[string][]pricing.Method, len(file.AllowedMethods))}
	seen := make(map[string]struct{}, len(file.Carriers))
	for i, c := range file.Carriers {
		family := strings.TrimSpace(c.Family)
		if family == "" {
			return Carriers{}, fmt.Errorf("carriers[%d]: family required", i)
		}
		if _, dup := seen[family]; dup {
			return Carriers{}, fmt.Errorf("carriers[%d]: duplicate family %q", i, family)
		}
		seen[family] = struct{}{}
		if c.MaxWeightKg <= 0 {
			return Carriers{}, fmt.Errorf("carriers[%d]: max_weight_kg must be positive", i)
		}
		methods := make([]pricing.Method, 0, len(c.Methods))
		for _, raw := range c.Methods {
			m, ok := pricing.ParseMethod(raw)
			if !ok {
				return Carriers{}, fmt.Errorf("carriers[%d]: unknown method %q", i, raw)
			}
			methods = append(methods, m)
		}
		countries := make([]string, 0, len(c.Countries))
		for _, country := range c.Countries {
			countries = append(countries, pricing.NormalizeCountry(country))
		}
		out.Static = append(out.Static, carrier.Static{
			CarrierFamily:     family,
			DisplayName:       c.Name,
			Countries:         countries,
			DeclaredMethods:   methods,
			MaxWeight:         c.MaxWeightKg,
			FreeShipThreshold: c.FreeShipmentThreshold,
		})
	}
	for family, raw := range file.AllowedMethods {
		methods := make([]pricing.Method, 0, len(raw))
		for _, r := range raw {
			methods = append(methods, pricing.Method(strings.ToLower(strings.TrimSpace(r))))
		}
		out.Allowed[strings.TrimSpace(family)] = methods
	}
	return out, nil
}
