package carrier

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"shippingrates/internal/pricing"
)

// ErrEmptyFeed is returned when a feed payload contains no carrier records.
var ErrEmptyFeed = errors.New("carrier feed: no records")

// FeedNormalizer maps a provider feed payload into dynamic carrier records.
type FeedNormalizer struct {
	// Family is assigned to every record, feed carriers share one product line.
	Family string
}

func NewFeedNormalizer(family string) *FeedNormalizer {
	return &FeedNormalizer{Family: strings.TrimSpace(family)}
}

// Normalize accepts either a JSON array of records or an object with a
// "carriers" array. Records without a numeric id, a two-letter country or a
// positive max weight are skipped and counted; such a carrier could never
// price a parcel.
func (n *FeedNormalizer) Normalize(body []byte) ([]Dynamic, int, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, 0, err
	}

	var records []any
	switch p := payload.(type) {
	case []any:
		records = p
	case map[string]any:
		if list, ok := getAny(p, []string{"carriers", "data.carriers", "items"}).([]any); ok {
			records = list
		}
	}
	if len(records) == 0 {
		return nil, 0, ErrEmptyFeed
	}

	skipped := 0
	out := make([]Dynamic, 0, len(records))
	seen := make(map[int64]int, len(records))
	for _, raw := range records {
		rec, ok := raw.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		id, ok := toInt64(getAny(rec, []string{"id", "carrier_id", "carrierId"}))
		if !ok || id <= 0 {
			skipped++
			continue
		}
		country := pricing.NormalizeCountry(getString(rec, []string{"country", "country_code", "countryId", "address.country"}))
		maxWeight, ok := toFloat(getAny(rec, []string{"max_weight", "maxWeight", "max_weight_kg", "limits.max_weight"}))
		if !ok || !validWeight(maxWeight) || !validCountry(country) {
			skipped++
			continue
		}
		d := Dynamic{
			ID:            id,
			CarrierFamily: n.Family,
			DisplayName:   getString(rec, []string{"name", "label", "title"}),
			CountryID:     country,
			MaxWeight:     maxWeight,
			PickupPoints:  toBool(getAny(rec, []string{"pickup_points", "pickupPoints", "is_pickup_points"})),
		}
		// later duplicates win, matching an upsert by id
		if i, dup := seen[id]; dup {
			out[i] = d
			continue
		}
		seen[id] = len(out)
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, skipped, ErrEmptyFeed
	}
	return out, skipped, nil
}

func validWeight(kg float64) bool {
	return kg > 0 && !math.IsInf(kg, 0) && !math.IsNaN(kg)
}

func validCountry(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// getString returns the first non-empty string from the candidate keys.
// Supports dot-path navigation for nested maps.
func getString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// getAny returns the first non-nil value from the candidate keys.
func getAny(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			return v
		}
	}
	return nil
}

// getPath navigates a dot-separated key into nested maps.
func getPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := mm[p]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	case float64:
		return int64(t), t == float64(int64(t))
	default:
		return 0, false
	}
}

// toBool accepts JSON booleans as well as the "true"/"1" strings and 0/1
// numbers some feeds emit.
func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		i, err := t.Int64()
		return err == nil && i != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}
