package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shippingrates/internal/pricing"
)

type WeightBandPayload struct {
	MaxWeightKg *float64 `json:"max_weight_kg"`
	Price       float64  `json:"price" validate:"gte=0"`
}

// PricingRuleRequest creates or replaces a rule together with its bands.
type PricingRuleRequest struct {
	Carrier               string              `json:"carrier" validate:"required"`
	CarrierID             *int64              `json:"carrier_id,omitempty" validate:"omitempty,gt=0"`
	Country               string              `json:"country" validate:"required,len=2,alpha"`
	Method                string              `json:"method" validate:"required"`
	Enabled               *bool               `json:"enabled,omitempty"`
	FreeShipmentThreshold *float64            `json:"free_shipment_threshold,omitempty" validate:"omitempty,gte=0"`
	MaxCOD                *float64            `json:"max_cod,omitempty" validate:"omitempty,gte=0"`
	AddressValidation     string              `json:"address_validation,omitempty"`
	WeightBands           []WeightBandPayload `json:"weight_bands" validate:"dive"`
}

type PricingRuleResponse struct {
	ID                    string              `json:"id"`
	Carrier               string              `json:"carrier"`
	CarrierID             *int64              `json:"carrier_id,omitempty"`
	Country               string              `json:"country"`
	Method                string              `json:"method"`
	Enabled               bool                `json:"enabled"`
	FreeShipmentThreshold *float64            `json:"free_shipment_threshold,omitempty"`
	MaxCOD                *float64            `json:"max_cod,omitempty"`
	AddressValidation     string              `json:"address_validation"`
	WeightBands           []WeightBandPayload `json:"weight_bands,omitempty"`
}

func (req PricingRuleRequest) toDomain(id uuid.UUID) (pricing.PricingRule, []pricing.WeightBand, bool) {
	method, ok := pricing.ParseMethod(req.Method)
	if !ok {
		return pricing.PricingRule{}, nil, false
	}
	validation, ok := pricing.ParseAddressValidation(req.AddressValidation)
	if !ok {
		return pricing.PricingRule{}, nil, false
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule := pricing.PricingRule{
		ID:                    id,
		CarrierFamily:         strings.TrimSpace(req.Carrier),
		DynamicCarrierID:      req.CarrierID,
		CountryID:             pricing.NormalizeCountry(req.Country),
		Method:                method,
		Enabled:               enabled,
		FreeShipmentThreshold: req.FreeShipmentThreshold,
		MaxCOD:                req.MaxCOD,
		AddressValidation:     validation,
	}
	bands := make([]pricing.WeightBand, 0, len(req.WeightBands))
	for _, b := range req.WeightBands {
		bands = append(bands, pricing.WeightBand{CeilingWeightKg: b.MaxWeightKg, Price: b.Price})
	}
	return rule, bands, true
}

func toRuleResponse(rule pricing.PricingRule, bands []pricing.WeightBand) PricingRuleResponse {
	res := PricingRuleResponse{
		ID:                    rule.ID.String(),
		Carrier:               rule.CarrierFamily,
		CarrierID:             rule.DynamicCarrierID,
		Country:               rule.CountryID,
		Method:                string(rule.Method),
		Enabled:               rule.Enabled,
		FreeShipmentThreshold: rule.FreeShipmentThreshold,
		MaxCOD:                rule.MaxCOD,
		AddressValidation:     string(rule.AddressValidation),
	}
	for _, b := range pricing.SortBands(bands) {
		res.WeightBands = append(res.WeightBands, WeightBandPayload{MaxWeightKg: b.CeilingWeightKg, Price: b.Price})
	}
	return res
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	s.saveRule(w, r, uuid.Nil, http.StatusCreated)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	s.saveRule(w, r, id, http.StatusOK)
}

func (s *Server) saveRule(w http.ResponseWriter, r *http.Request, id uuid.UUID, status int) {
	var req PricingRuleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	rule, bands, ok := req.toDomain(id)
	if !ok {
		writeFieldErrorJSON(w, http.StatusBadRequest, "invalid_request", "unknown method or address validation", "method")
		return
	}
	saved, err := s.store.SaveRule(r.Context(), rule, bands)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, toRuleResponse(saved, bands))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, bands, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(*rule, bands))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListRules(r.Context(), r.URL.Query().Get("country"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]PricingRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pricing_rules": out})
}

func (s *Server) handleSetRuleEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := ruleID(w, r)
		if !ok {
			return
		}
		if err := s.store.SetRuleEnabled(r.Context(), id, enabled); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteRule(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "invalid rule id")
		return uuid.Nil, false
	}
	return id, true
}
