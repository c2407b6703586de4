package rate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shippingrates/internal/carrier"
	"shippingrates/internal/metrics"
	"shippingrates/internal/pricing"
	"shippingrates/internal/store"
)

func kg(v float64) *float64 { return &v }

func id(v int64) *int64 { return &v }

type fixture struct {
	store   *store.Memory
	catalog *carrier.Catalog
	quoter  *Quoter
}

func newFixture(t *testing.T, allowed map[string][]pricing.Method) fixture {
	t.Helper()
	f := fixture{store: store.NewMemory(), catalog: carrier.NewCatalog()}
	f.catalog.Replace(
		[]carrier.Static{{
			CarrierFamily:     "home_delivery",
			DisplayName:       "Home delivery",
			Countries:         []string{"CZ", "SK"},
			DeclaredMethods:   []pricing.Method{pricing.AddressDelivery},
			MaxWeight:         30,
			FreeShipThreshold: kg(5000),
		}},
		[]carrier.Dynamic{
			{ID: 106, CarrierFamily: "feed", DisplayName: "CZ box", CountryID: "CZ", MaxWeight: 10, PickupPoints: true},
			{ID: 107, CarrierFamily: "feed", DisplayName: "CZ door", CountryID: "CZ", MaxWeight: 10},
			{ID: 108, CarrierFamily: "feed", DisplayName: "gone", CountryID: "CZ", MaxWeight: 10, Deleted: true},
		},
		allowed,
	)
	f.quoter = NewQuoter(f.store, f.catalog, metrics.New())
	return f
}

func (f fixture) save(t *testing.T, rule pricing.PricingRule, bands ...pricing.WeightBand) pricing.PricingRule {
	t.Helper()
	saved, err := f.store.SaveRule(context.Background(), rule, bands)
	require.NoError(t, err)
	return saved
}

func staticRule(country string) pricing.PricingRule {
	return pricing.PricingRule{CarrierFamily: "home_delivery", CountryID: country, Method: pricing.AddressDelivery, Enabled: true}
}

func feedRule(carrierID int64, method pricing.Method) pricing.PricingRule {
	return pricing.PricingRule{CarrierFamily: "feed", DynamicCarrierID: id(carrierID), CountryID: "CZ", Method: method, Enabled: true}
}

func TestQuote_PricesEveryResolvableCandidate(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, staticRule("CZ"), pricing.WeightBand{CeilingWeightKg: kg(5), Price: 49}, pricing.WeightBand{CeilingWeightKg: kg(10), Price: 79})
	f.save(t, feedRule(106, pricing.PickupPointDelivery), pricing.WeightBand{CeilingWeightKg: kg(5), Price: 39})
	f.save(t, feedRule(107, pricing.DirectAddressDelivery), pricing.WeightBand{CeilingWeightKg: kg(5), Price: 89})

	res, err := f.quoter.Quote(context.Background(), Request{
		CountryID: "cz",
		Candidates: []Candidate{
			{CarrierFamily: "home_delivery", Method: pricing.AddressDelivery},
			{CarrierFamily: "feed", DynamicCarrierID: id(106), Method: pricing.PickupPointDelivery},
			{CarrierFamily: "feed", DynamicCarrierID: id(107), Method: pricing.DirectAddressDelivery},
		},
		CartWeightKg: 3,
		CartValue:    100,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Generation)
	require.Len(t, res.Rates, 3)
	assert.Equal(t, 49.0, res.Rates[0].Price)
	assert.Nil(t, res.Rates[0].DynamicCarrierID)
	assert.Equal(t, 39.0, res.Rates[1].Price)
	assert.Equal(t, "CZ box", res.Rates[1].CarrierName)
	assert.Equal(t, 89.0, res.Rates[2].Price)
}

func TestQuote_NoRulesMeansEmptyResult(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, staticRule("CZ"), pricing.WeightBand{Price: 49})

	res, err := f.quoter.Quote(context.Background(), Request{
		CountryID: "DE",
		Candidates: []Candidate{
			{CarrierFamily: "home_delivery", Method: pricing.AddressDelivery},
			{CarrierFamily: "home_delivery", Method: pricing.PickupPointDelivery},
			{CarrierFamily: "feed", DynamicCarrierID: id(106), Method: pricing.PickupPointDelivery},
		},
		CartWeightKg: 1,
		CartValue:    10,
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Rates)
	assert.Empty(t, res.Rates)
}

func TestQuote_CountryServedButNoRule(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.quoter.Quote(context.Background(), Request{
		CountryID:    "SK",
		Candidates:   []Candidate{{CarrierFamily: "home_delivery", Method: pricing.AddressDelivery}},
		CartWeightKg: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rates)
}

func TestQuote_FreeShippingAndWeightVeto(t *testing.T) {
	f := newFixture(t, nil)
	rule := staticRule("CZ")
	rule.FreeShipmentThreshold = kg(20000)
	f.save(t, rule, pricing.WeightBand{Price: 79})

	cand := []Candidate{{CarrierFamily: "home_delivery", Method: pricing.AddressDelivery}}
	res, err := f.quoter.Quote(context.Background(), Request{CountryID: "CZ", Candidates: cand, CartWeightKg: 30, CartValue: 50000})
	require.NoError(t, err)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, 0.0, res.Rates[0].Price)

	res, err = f.quoter.Quote(context.Background(), Request{CountryID: "CZ", Candidates: cand, CartWeightKg: 30.5, CartValue: 50000})
	require.NoError(t, err)
	assert.Empty(t, res.Rates)
}

func TestQuote_CarrierThresholdWhenRuleHasNone(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, staticRule("CZ"), pricing.WeightBand{Price: 79})

	cand := []Candidate{{CarrierFamily: "home_delivery", Method: pricing.AddressDelivery}}
	res, err := f.quoter.Quote(context.Background(), Request{CountryID: "CZ", Candidates: cand, CartWeightKg: 1, CartValue: 5000})
	require.NoError(t, err)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, 0.0, res.Rates[0].Price)
}

func TestQuote_DisabledAndDeletedDropOut(t *testing.T) {
	f := newFixture(t, nil)
	disabled := feedRule(106, pricing.PickupPointDelivery)
	disabled.Enabled = false
	f.save(t, disabled, pricing.WeightBand{Price: 39})
	f.save(t, feedRule(108, pricing.DirectAddressDelivery), pricing.WeightBand{Price: 10})

	res, err := f.quoter.Quote(context.Background(), Request{
		CountryID: "CZ",
		Candidates: []Candidate{
			{CarrierFamily: "feed", DynamicCarrierID: id(106), Method: pricing.PickupPointDelivery},
			{CarrierFamily: "feed", DynamicCarrierID: id(108), Method: pricing.DirectAddressDelivery},
		},
		CartWeightKg: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rates)
}

func TestQuote_AdministratorRestriction(t *testing.T) {
	f := newFixture(t, map[string][]pricing.Method{"feed": {pricing.PickupPointDelivery}})
	f.save(t, feedRule(106, pricing.PickupPointDelivery), pricing.WeightBand{Price: 39})
	f.save(t, feedRule(107, pricing.DirectAddressDelivery), pricing.WeightBand{Price: 89})

	res, err := f.quoter.Quote(context.Background(), Request{
		CountryID: "CZ",
		Candidates: []Candidate{
			{CarrierFamily: "feed", DynamicCarrierID: id(106), Method: pricing.PickupPointDelivery},
			{CarrierFamily: "feed", DynamicCarrierID: id(107), Method: pricing.DirectAddressDelivery},
		},
		CartWeightKg: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, pricing.PickupPointDelivery, res.Rates[0].Method)
}

func TestQuote_UnknownMethodIgnored(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.quoter.Quote(context.Background(), Request{
		CountryID:  "CZ",
		Candidates: []Candidate{{CarrierFamily: "home_delivery", Method: "hovercraft"}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rates)
}

func TestQuote_SeesFeedReplacement(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, feedRule(106, pricing.PickupPointDelivery), pricing.WeightBand{Price: 39})
	req := Request{
		CountryID:    "CZ",
		Candidates:   []Candidate{{CarrierFamily: "feed", DynamicCarrierID: id(106), Method: pricing.PickupPointDelivery}},
		CartWeightKg: 1,
	}

	res, err := f.quoter.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Rates, 1)

	f.catalog.ReplaceDynamic([]carrier.Dynamic{{ID: 106, CarrierFamily: "feed", CountryID: "CZ", MaxWeight: 10, PickupPoints: true, Deleted: true}})
	res, err = f.quoter.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Generation)
	assert.Empty(t, res.Rates)
}

type failingReader struct{ err error }

func (r failingReader) FindEnabledRule(context.Context, pricing.RuleKey) (*pricing.PricingRule, []pricing.WeightBand, error) {
	return nil, nil, r.err
}

func TestQuote_StorageErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("connection reset")
	q := NewQuoter(failingReader{err: boom}, f.catalog, nil)

	_, err := q.Quote(context.Background(), Request{
		CountryID:  "CZ",
		Candidates: []Candidate{{CarrierFamily: "home_delivery", Method: pricing.AddressDelivery}},
	})
	assert.ErrorIs(t, err, boom)
}
