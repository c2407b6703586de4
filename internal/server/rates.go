package server

import (
	"net/http"
	"strings"

	"shippingrates/internal/pricing"
	"shippingrates/internal/rate"
)

// RateRequest asks for prices of several delivery options to one country.
type RateRequest struct {
	Country    string          `json:"country" validate:"required,len=2,alpha"`
	Candidates []RateCandidate `json:"candidates" validate:"required,min=1,dive"`
	WeightKg   float64         `json:"weight_kg"`
	Value      float64         `json:"value" validate:"gte=0"`
}

type RateCandidate struct {
	Carrier   string `json:"carrier" validate:"required"`
	CarrierID *int64 `json:"carrier_id,omitempty"`
	Method    string `json:"method" validate:"required"`
}

type RateOption struct {
	Carrier           string  `json:"carrier"`
	CarrierID         *int64  `json:"carrier_id,omitempty"`
	CarrierName       string  `json:"carrier_name,omitempty"`
	Method            string  `json:"method"`
	Price             float64 `json:"price"`
	AddressValidation string  `json:"address_validation"`
}

type RateResponse struct {
	Generation uint64       `json:"generation"`
	Rates      []RateOption `json:"rates"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	candidates := make([]rate.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		// unknown methods are passed through and simply never priced
		method, ok := pricing.ParseMethod(c.Method)
		if !ok {
			method = pricing.Method(strings.TrimSpace(c.Method))
		}
		candidates = append(candidates, rate.Candidate{
			CarrierFamily:    strings.TrimSpace(c.Carrier),
			DynamicCarrierID: c.CarrierID,
			Method:           method,
		})
	}

	res, err := s.quoter.Quote(r.Context(), rate.Request{
		CountryID:    req.Country,
		Candidates:   candidates,
		CartWeightKg: req.WeightKg,
		CartValue:    req.Value,
	})
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}

	out := RateResponse{Generation: res.Generation, Rates: make([]RateOption, 0, len(res.Rates))}
	for _, rt := range res.Rates {
		out.Rates = append(out.Rates, RateOption{
			Carrier:           rt.CarrierFamily,
			CarrierID:         rt.DynamicCarrierID,
			CarrierName:       rt.CarrierName,
			Method:            string(rt.Method),
			Price:             rt.Price,
			AddressValidation: string(rt.AddressValidation),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
