package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"shippingrates/internal/carrier"
	"shippingrates/internal/logging"
)

type CarrierView struct {
	Carrier     string   `json:"carrier"`
	CarrierID   *int64   `json:"carrier_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Countries   []string `json:"countries,omitempty"`
	Methods     []string `json:"methods"`
	MaxWeightKg float64  `json:"max_weight_kg"`
	Deleted     bool     `json:"deleted,omitempty"`
}

type CarriersResponse struct {
	Generation uint64        `json:"generation"`
	Carriers   []CarrierView `json:"carriers"`
}

func (s *Server) handleListCarriers(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Snapshot()
	res := CarriersResponse{Generation: snap.Generation, Carriers: []CarrierView{}}
	for _, c := range snap.Static() {
		res.Carriers = append(res.Carriers, CarrierView{
			Carrier:     c.CarrierFamily,
			Name:        c.DisplayName,
			Countries:   c.Countries,
			Methods:     methodNames(c.Methods()),
			MaxWeightKg: c.MaxWeight,
		})
	}
	for _, d := range snap.Dynamic() {
		res.Carriers = append(res.Carriers, CarrierView{
			Carrier:     d.CarrierFamily,
			CarrierID:   d.DynamicID(),
			Name:        d.DisplayName,
			Countries:   []string{d.CountryID},
			Methods:     methodNames(d.Methods()),
			MaxWeightKg: d.MaxWeight,
			Deleted:     d.Deleted,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

type FeedSyncResponse struct {
	Generation uint64 `json:"generation"`
	Carriers   int    `json:"carriers"`
	Skipped    int    `json:"skipped"`
}

// handleCarrierFeed ingests a signed carrier feed push. The body must carry
// an X-Signature header with the hex HMAC-SHA256 of the raw body.
func (s *Server) handleCarrierFeed(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(s.feedSecret) == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "secret_not_configured", "feed secret not configured")
		return
	}

	// Read raw body for signature verification
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "read_error", "read error")
		return
	}
	sigHeader := strings.TrimSpace(r.Header.Get("X-Signature"))
	sigHeader = strings.TrimPrefix(sigHeader, "sha256=")
	if sigHeader == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "missing_signature", "missing signature")
		return
	}
	provided, err := hex.DecodeString(sigHeader)
	if err != nil {
		writeErrorJSON(w, http.StatusUnauthorized, "invalid_signature_format", "invalid signature format")
		return
	}
	mac := hmac.New(sha256.New, []byte(s.feedSecret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		writeErrorJSON(w, http.StatusUnauthorized, "signature_mismatch", "signature mismatch")
		return
	}

	records, skipped, err := s.feed.Normalize(body)
	if err != nil {
		s.metrics.ObserveFeedSync(false)
		if errors.Is(err, carrier.ErrEmptyFeed) {
			writeErrorJSON(w, http.StatusBadRequest, "empty_feed", "feed contains no usable carriers")
		} else {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		}
		return
	}

	ctx := r.Context()
	log := logging.FromContext(ctx)
	if skipped > 0 {
		log.Warn("carrier feed records skipped", zap.Int("skipped", skipped))
	}
	var stored int
	snap, err := s.catalog.Sync(ctx, func(ctx context.Context) ([]carrier.Dynamic, error) {
		if err := s.store.SyncDynamicCarriers(ctx, records); err != nil {
			return nil, fmt.Errorf("sync carriers: %w", err)
		}
		// Publish what storage now holds, deleted carriers included.
		all, err := s.store.ListDynamicCarriers(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload carriers: %w", err)
		}
		stored = len(all)
		return all, nil
	})
	if err != nil {
		s.metrics.ObserveFeedSync(false)
		log.Error("carrier feed sync failed", zap.Error(err))
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}
	s.metrics.ObserveFeedSync(true)
	log.Info("carrier feed synchronized",
		zap.Int("received", len(records)),
		zap.Int("skipped", skipped),
		zap.Int("stored", stored),
		zap.Uint64("generation", snap.Generation))

	writeJSON(w, http.StatusOK, FeedSyncResponse{Generation: snap.Generation, Carriers: len(records), Skipped: skipped})
}

func methodNames[M ~string](methods []M) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	return out
}
