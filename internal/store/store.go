// Package store persists pricing rules, their weight bands and the feed
// carrier catalog.
package store

import (
	"context"

	"github.com/google/uuid"

	"shippingrates/internal/carrier"
	"shippingrates/internal/pricing"
)

// RuleStore is the configuration surface for pricing rules. Writes validate
// their input and commit rule and bands together or not at all.
type RuleStore interface {
	// FindEnabledRule returns the enabled rule for key together with its
	// bands, read from one snapshot. A missing rule is (nil, nil, nil).
	FindEnabledRule(ctx context.Context, key pricing.RuleKey) (*pricing.PricingRule, []pricing.WeightBand, error)
	GetRule(ctx context.Context, id uuid.UUID) (*pricing.PricingRule, []pricing.WeightBand, error)
	ListRules(ctx context.Context, countryID string) ([]pricing.PricingRule, error)
	// SaveRule creates the rule when its ID is zero and replaces it otherwise.
	SaveRule(ctx context.Context, rule pricing.PricingRule, bands []pricing.WeightBand) (pricing.PricingRule, error)
	SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// CarrierStore holds the feed carriers.
type CarrierStore interface {
	ListDynamicCarriers(ctx context.Context) ([]carrier.Dynamic, error)
	// SyncDynamicCarriers marks every stored carrier deleted and upserts the
	// given records by id, in one transaction.
	SyncDynamicCarriers(ctx context.Context, carriers []carrier.Dynamic) error
}

// Store is the full persistence contract.
type Store interface {
	RuleStore
	CarrierStore
}

func prepareRule(rule pricing.PricingRule) pricing.PricingRule {
	rule.CountryID = pricing.NormalizeCountry(rule.CountryID)
	if rule.AddressValidation == "" {
		rule.AddressValidation = pricing.AddressValidationNone
	}
	return rule
}
