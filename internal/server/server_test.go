package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shippingrates/internal/carrier"
	"shippingrates/internal/pricing"
	"shippingrates/internal/store"
)


func newTestServer(t *testing.T) (http.Handler, *store.Memory, *carrier.Catalog) {
	t.Helper()
	st := store.NewMemory()
	cat := carrier.NewCatalog()
	cat.Replace([]carrier.Static{{
		CarrierFamily:   "home_delivery",
		DisplayName:     "Home delivery",
		Countries:       []string{"CZ"},
		DeclaredMethods: []pricing.Method{pricing.AddressDelivery},
		MaxWeight:       10,
	}}, nil, nil)
	h := New(Deps{Store: st, Catalog: cat, FeedSecret: "feedsecret", FeedFamily: "feed"})
	return h, st, cat
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body 'ok', got %q", body)
	}
}

func TestRequestIDHeaderPresent(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rid := rr.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestServer(t)
	doJSON(t, h, http.MethodGet, "/healthz", nil)
	rr := doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func createRule(t *testing.T, h http.Handler, payload map[string]any) PricingRuleResponse {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/pricing-rules", payload)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res PricingRuleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func homeRulePayload() map[string]any {
	return map[string]any{
		"carrier":                 "home_delivery",
		"country":                 "cz",
		"method":                  "address_delivery",
		"free_shipment_threshold": 20000,
		"weight_bands": []map[string]any{
			{"max_weight_kg": 10, "price": 79},
			{"max_weight_kg": 5, "price": 49},
		},
	}
}

func TestGetRates(t *testing.T) {
	h, _, _ := newTestServer(t)
	createRule(t, h, homeRulePayload())

	quote := func(weight, value float64) RateResponse {
		rr := doJSON(t, h, http.MethodPost, "/rates", map[string]any{
			"country":    "CZ",
			"weight_kg":  weight,
			"value":      value,
			"candidates": []map[string]any{{"carrier": "home_delivery", "method": "address_delivery"}},
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var res RateResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		return res
	}

	res := quote(4, 100)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, 49.0, res.Rates[0].Price)
	assert.Equal(t, "none", res.Rates[0].AddressValidation)

	res = quote(8, 100)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, 79.0, res.Rates[0].Price)

	res = quote(10, 50000)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, 0.0, res.Rates[0].Price)

	res = quote(11, 50000)
	assert.Empty(t, res.Rates)
}

func TestGetRates_UnservedCountryIsEmptyNotError(t *testing.T) {
	h, _, _ := newTestServer(t)
	createRule(t, h, homeRulePayload())

	rr := doJSON(t, h, http.MethodPost, "/rates", map[string]any{
		"country":    "DE",
		"weight_kg":  1,
		"candidates": []map[string]any{{"carrier": "home_delivery", "method": "address_delivery"}, {"carrier": "home_delivery", "method": "pickup_point_delivery"}},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"generation":1,"rates":[]}`, rr.Body.String())
}

func TestRuleLifecycle(t *testing.T) {
	h, _, _ := newTestServer(t)
	created := createRule(t, h, homeRulePayload())
	assert.Equal(t, "CZ", created.Country)
	assert.True(t, created.Enabled)
	require.Len(t, created.WeightBands, 2)
	assert.Equal(t, 49.0, created.WeightBands[0].Price)

	rr := doJSON(t, h, http.MethodGet, "/pricing-rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/pricing-rules/"+created.ID+"/disable", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/rates", map[string]any{
		"country":    "CZ",
		"weight_kg":  1,
		"candidates": []map[string]any{{"carrier": "home_delivery", "method": "address_delivery"}},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rates":[]`)

	rr = doJSON(t, h, http.MethodPost, "/pricing-rules/"+created.ID+"/enable", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	update := homeRulePayload()
	update["weight_bands"] = []map[string]any{{"price": 99}}
	rr = doJSON(t, h, http.MethodPut, "/pricing-rules/"+created.ID, update)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, h, http.MethodGet, "/pricing-rules?country=cz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), created.ID)

	rr = doJSON(t, h, http.MethodDelete, "/pricing-rules/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/pricing-rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListCarriers(t *testing.T) {
	h, _, _ := newTestServer(t)
	rr := doJSON(t, h, http.MethodGet, "/carriers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res CarriersResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Carriers, 1)
	assert.Equal(t, "home_delivery", res.Carriers[0].Carrier)
	assert.Equal(t, []string{"address_delivery"}, res.Carriers[0].Methods)
}
