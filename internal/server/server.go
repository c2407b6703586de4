package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shippingrates/internal/carrier"
	"shippingrates/internal/logging"
	"shippingrates/internal/metrics"
	"shippingrates/internal/pricing"
	"shippingrates/internal/rate"
	"shippingrates/internal/store"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Store      store.Store
	Catalog    *carrier.Catalog
	Logger     *zap.Logger
	Metrics    *metrics.Registry
	FeedSecret string
	FeedFamily string
}

type Server struct {
	store      store.Store
	catalog    *carrier.Catalog
	quoter     *rate.Quoter
	log        *zap.Logger
	metrics    *metrics.Registry
	feed       *carrier.FeedNormalizer
	feedSecret string
	validate   *validator.Validate
}

func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Catalog == nil {
		d.Catalog = carrier.NewCatalog()
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	s := &Server{
		store:      d.Store,
		catalog:    d.Catalog,
		quoter:     rate.NewQuoter(d.Store, d.Catalog, d.Metrics),
		log:        d.Logger,
		metrics:    d.Metrics,
		feed:       carrier.NewFeedNormalizer(orDefault(d.FeedFamily, "feed")),
		feedSecret: d.FeedSecret,
		validate:   newValidator(),
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", d.Metrics.Handler())
	r.Post("/rates", s.handleQuote)
	r.Get("/carriers", s.handleListCarriers)
	r.Post("/carriers/feed", s.handleCarrierFeed)
	r.Route("/pricing-rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{id}", s.handleGetRule)
		r.Put("/{id}", s.handleUpdateRule)
		r.Delete("/{id}", s.handleDeleteRule)
		r.Post("/{id}/enable", s.handleSetRuleEnabled(true))
		r.Post("/{id}/disable", s.handleSetRuleEnabled(false))
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// decodeJSON decodes the body into dst and runs struct validation. It writes
// the error response itself and reports whether the handler may continue.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeFieldErrorJSON(w, http.StatusBadRequest, "invalid_request",
				fe.Field()+" failed "+fe.Tag()+" validation", jsonFieldName(fe.Namespace()))
			return false
		}
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

// writeServiceError maps domain errors onto the error envelope. Anything
// unrecognised is an infrastructure fault and gets logged.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pricing.ErrDuplicateCountry):
		writeFieldErrorJSON(w, http.StatusConflict, "duplicate_country", err.Error(), "country")
	case errors.Is(err, pricing.ErrInvalidMaxWeight):
		writeFieldErrorJSON(w, http.StatusUnprocessableEntity, "invalid_max_weight", err.Error(), "weight_bands")
	case errors.Is(err, pricing.ErrWeightRuleMissing):
		writeFieldErrorJSON(w, http.StatusUnprocessableEntity, "weight_rule_missing", err.Error(), "weight_bands")
	case errors.Is(err, pricing.ErrPricingRuleNotFound):
		writeErrorJSON(w, http.StatusNotFound, "pricing_rule_not_found", "pricing rule not found")
	case errors.Is(err, pricing.ErrInvalidRule):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		logging.FromContext(r.Context()).Error("store error", zap.Error(err))
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeFieldErrorJSON(w, status, code, message, "")
}

// writeFieldErrorJSON adds the offending request field so forms can place
// the message next to it.
func writeFieldErrorJSON(w http.ResponseWriter, status int, code, message, field string) {
	body := map[string]string{
		"code":    code,
		"message": message,
	}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, map[string]any{"error": body})
}

type requestIDKey struct{}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
// The id and a request-scoped logger are stored on the context.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		ctx = logging.WithLogger(ctx, s.log.With(zap.String("request_id", rid)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by requestIDMiddleware.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes", ww.BytesWritten()),
		}
		log := logging.FromContext(r.Context())
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request completed", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// jsonFieldName drops the root type from a validator namespace such as
// "rateRequest.candidates[0].method".
func jsonFieldName(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func orDefault(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}
