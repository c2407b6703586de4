// Package rate turns a checkout request into priced delivery options.
package rate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shippingrates/internal/carrier"
	"shippingrates/internal/logging"
	"shippingrates/internal/metrics"
	"shippingrates/internal/pricing"
)

// RuleReader loads the enabled rule for a key together with its bands from
// one consistent read. A missing rule is (nil, nil, nil).
type RuleReader interface {
	FindEnabledRule(ctx context.Context, key pricing.RuleKey) (*pricing.PricingRule, []pricing.WeightBand, error)
}

// SnapshotSource hands out the current carrier catalog generation.
type SnapshotSource interface {
	Snapshot() *carrier.Snapshot
}

// Candidate is one delivery option the checkout wants priced.
type Candidate struct {
	CarrierFamily    string
	DynamicCarrierID *int64
	Method           pricing.Method
}

// Request is a quote request for one destination and cart.
type Request struct {
	CountryID    string
	Candidates   []Candidate
	CartWeightKg float64
	CartValue    float64
}

// Rate is a priced delivery option.
type Rate struct {
	CarrierFamily     string
	DynamicCarrierID  *int64
	CarrierName       string
	Method            pricing.Method
	Price             float64
	AddressValidation pricing.AddressValidation
}

// Result lists the options that resolved to a price. An empty list is a
// normal outcome, not an error.
type Result struct {
	Generation uint64
	Rates      []Rate
}

// Quoter prices candidates against the carrier catalog and stored rules.
type Quoter struct {
	rules   RuleReader
	catalog SnapshotSource
	metrics *metrics.Registry
	valid   map[pricing.Method]struct{}
}

func NewQuoter(rules RuleReader, catalog SnapshotSource, reg *metrics.Registry) *Quoter {
	return &Quoter{
		rules:   rules,
		catalog: catalog,
		metrics: reg,
		valid:   pricing.ValidMethods(),
	}
}

// Quote prices every candidate independently. Only storage failures are
// returned as errors; every other reason a candidate drops out (no carrier,
// method not allowed, no enabled rule, too heavy, no covering band) just
// omits it from the result.
func (q *Quoter) Quote(ctx context.Context, req Request) (Result, error) {
	snap := q.catalog.Snapshot()
	res := Result{Generation: snap.Generation, Rates: []Rate{}}
	country := pricing.NormalizeCountry(req.CountryID)

	for _, cand := range req.Candidates {
		r, ok, err := q.quoteOne(ctx, snap, country, cand, req)
		if err != nil {
			logging.FromContext(ctx).Error("pricing rule lookup failed",
				zap.String("carrier", cand.CarrierFamily),
				zap.String("method", string(cand.Method)),
				zap.String("country", country),
				zap.Error(err))
			return Result{}, fmt.Errorf("quote %s/%s: %w", cand.CarrierFamily, cand.Method, err)
		}
		if !ok {
			q.metrics.ObserveQuote(string(cand.Method), metrics.OutcomeUnavailable)
			continue
		}
		outcome := metrics.OutcomePriced
		if r.Price == 0 {
			outcome = metrics.OutcomeFree
		}
		q.metrics.ObserveQuote(string(cand.Method), outcome)
		res.Rates = append(res.Rates, r)
	}
	return res, nil
}

func (q *Quoter) quoteOne(ctx context.Context, snap *carrier.Snapshot, country string, cand Candidate, req Request) (Rate, bool, error) {
	if _, ok := q.valid[cand.Method]; !ok {
		return Rate{}, false, nil
	}
	c := snap.Resolve(carrier.LookupKey{
		Family:           cand.CarrierFamily,
		DynamicCarrierID: cand.DynamicCarrierID,
		CountryID:        country,
		Method:           cand.Method,
	})
	if c == nil {
		return Rate{}, false, nil
	}
	allowed := carrier.ReconcileAllowedMethods(snap.AllowedMethods(c.Family()), c.Methods(), q.valid)
	if !containsMethod(allowed, cand.Method) {
		return Rate{}, false, nil
	}

	rule, bands, err := q.rules.FindEnabledRule(ctx, pricing.RuleKey{
		CarrierFamily:    c.Family(),
		DynamicCarrierID: c.DynamicID(),
		CountryID:        country,
		Method:           cand.Method,
	})
	if err != nil {
		return Rate{}, false, err
	}

	price, ok := pricing.Quote(pricing.QuoteInput{
		Rule:                         rule,
		Bands:                        bands,
		CartWeightKg:                 req.CartWeightKg,
		CartValue:                    req.CartValue,
		CarrierMaxWeightKg:           c.MaxWeightKg(),
		CarrierFreeShipmentThreshold: c.FreeShipmentThreshold(),
	})
	if !ok {
		return Rate{}, false, nil
	}
	return Rate{
		CarrierFamily:     c.Family(),
		DynamicCarrierID:  c.DynamicID(),
		CarrierName:       c.Name(),
		Method:            cand.Method,
		Price:             price,
		AddressValidation: rule.AddressValidation,
	}, true, nil
}

func containsMethod(methods []pricing.Method, m pricing.Method) bool {
	for _, x := range methods {
		if x == m {
			return true
		}
	}
	return false
}
