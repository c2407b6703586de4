package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"shippingrates/internal/carrier"
	"shippingrates/internal/pricing"
)

type memoryRule struct {
	rule  pricing.PricingRule
	bands []pricing.WeightBand
}

// Memory is an in-process Store. Rule and bands live in one record so
// deleting a rule drops its bands.
type Memory struct {
	mu       sync.RWMutex
	rules    map[uuid.UUID]memoryRule
	carriers map[int64]carrier.Dynamic
}

func NewMemory() *Memory {
	return &Memory{
		rules:    make(map[uuid.UUID]memoryRule),
		carriers: make(map[int64]carrier.Dynamic),
	}
}

func (m *Memory) FindEnabledRule(_ context.Context, key pricing.RuleKey) (*pricing.PricingRule, []pricing.WeightBand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.rules {
		if rec.rule.Enabled && rec.rule.Key().Equal(key) {
			rule := cloneRule(rec.rule)
			return &rule, cloneBands(rec.bands), nil
		}
	}
	return nil, nil, nil
}

func (m *Memory) GetRule(_ context.Context, id uuid.UUID) (*pricing.PricingRule, []pricing.WeightBand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rules[id]
	if !ok {
		return nil, nil, pricing.ErrPricingRuleNotFound
	}
	rule := cloneRule(rec.rule)
	return &rule, cloneBands(rec.bands), nil
}

func (m *Memory) ListRules(_ context.Context, countryID string) ([]pricing.PricingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	country := pricing.NormalizeCountry(countryID)
	out := make([]pricing.PricingRule, 0, len(m.rules))
	for _, rec := range m.rules {
		if country != "" && rec.rule.CountryID != country {
			continue
		}
		out = append(out, cloneRule(rec.rule))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (m *Memory) SaveRule(_ context.Context, rule pricing.PricingRule, bands []pricing.WeightBand) (pricing.PricingRule, error) {
	rule = prepareRule(rule)
	if err := pricing.ValidateRuleInput(rule, bands); err != nil {
		return pricing.PricingRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	} else if _, ok := m.rules[rule.ID]; !ok {
		return pricing.PricingRule{}, pricing.ErrPricingRuleNotFound
	}
	if rule.Enabled && m.enabledConflict(rule) {
		return pricing.PricingRule{}, pricing.DuplicateCountryError(rule)
	}
	m.rules[rule.ID] = memoryRule{rule: cloneRule(rule), bands: cloneBands(bands)}
	return cloneRule(rule), nil
}

func (m *Memory) SetRuleEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rules[id]
	if !ok {
		return pricing.ErrPricingRuleNotFound
	}
	if enabled && !rec.rule.Enabled && m.enabledConflict(rec.rule) {
		return pricing.DuplicateCountryError(rec.rule)
	}
	rec.rule.Enabled = enabled
	m.rules[id] = rec
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return pricing.ErrPricingRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// enabledConflict reports whether another enabled rule occupies rule's key.
// Callers hold the write lock.
func (m *Memory) enabledConflict(rule pricing.PricingRule) bool {
	key := rule.Key()
	for id, rec := range m.rules {
		if id != rule.ID && rec.rule.Enabled && rec.rule.Key().Equal(key) {
			return true
		}
	}
	return false
}

func (m *Memory) ListDynamicCarriers(_ context.Context) ([]carrier.Dynamic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]carrier.Dynamic, 0, len(m.carriers))
	for _, d := range m.carriers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SyncDynamicCarriers(_ context.Context, carriers []carrier.Dynamic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.carriers {
		d.Deleted = true
		m.carriers[id] = d
	}
	for _, d := range carriers {
		d.CountryID = pricing.NormalizeCountry(d.CountryID)
		d.Deleted = false
		m.carriers[d.ID] = d
	}
	return nil
}

// cloneRule copies the optional fields so callers never share storage with
// the stored record.
func cloneRule(rule pricing.PricingRule) pricing.PricingRule {
	rule.DynamicCarrierID = clonePtr(rule.DynamicCarrierID)
	rule.FreeShipmentThreshold = clonePtr(rule.FreeShipmentThreshold)
	rule.MaxCOD = clonePtr(rule.MaxCOD)
	return rule
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBands(bands []pricing.WeightBand) []pricing.WeightBand {
	out := make([]pricing.WeightBand, len(bands))
	for i, b := range bands {
		out[i].Price = b.Price
		out[i].CeilingWeightKg = clonePtr(b.CeilingWeightKg)
	}
	return out
}
