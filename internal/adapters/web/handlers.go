package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/logger"
	"boxcard-ledger/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins     string
	JWTSecret          string
	TokenTTL           time.Duration
	RateLimitPerMinute int
	SecureCookies      bool
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc           app.ApplicationService
	router        chi.Router
	log           *logger.Logger
	jwtSecret     string
	tokenTTL      time.Duration
	secureCookies bool
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log *logger.Logger, m *metrics.Ledger, opts Options) http.Handler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 120
	}

	h := &Handler{
		svc:           svc,
		log:           log,
		jwtSecret:     opts.JWTSecret,
		tokenTTL:      opts.TokenTTL,
		secureCookies: opts.SecureCookies,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(log))
	r.Use(Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// ── Health and metrics (public) ──────────────────────────────────────────
	r.Get("/api/health", h.health)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// ── Auth (public API) ────────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		r.Use(RequestBodyLimit(64 << 10))
		r.Post("/api/auth/login", h.login)
	})
	r.Post("/api/auth/logout", h.logout)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(64 << 10))

		r.Get("/api/auth/me", h.me)

		// ── Cards ────────────────────────────────────────────────────────────
		r.Get("/api/customers/{customerID}/card", h.apiGetActiveCard)
		r.Get("/api/cards/{cardID}", h.apiGetCard)
		r.Get("/api/cards/{cardID}/boxes", h.apiGetBoxStates)
		r.Get("/api/cards/{cardID}/payments", h.apiGetPaymentHistory)
		r.Get("/api/cards/{cardID}/sales", h.apiGetDailySales)
		r.Get("/api/cards/{cardID}/verify", h.apiVerifyCard)

		// ── Rollups ──────────────────────────────────────────────────────────
		r.Get("/api/branches/{branchID}/worker-totals", h.apiWorkerTotals)
		r.Get("/api/companies/{companyID}/branch-totals", h.apiBranchTotals)
		r.Get("/api/companies/{companyID}/totals", h.apiCompanyTotals)

		// ── Mutations (rate limited per client) ──────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))

			r.Post("/api/customers/{customerID}/card", h.apiAssignCard)
			r.Post("/api/cards/{cardID}/payments", h.apiApplyPayment)
			r.Post("/api/payments/{paymentID}/reverse", h.apiReversePayment)
			r.Post("/api/payments/{paymentID}/adjust", h.apiAdjustPayment)
		})
	})

	h.router = r
	return r
}

// health reports whether the database answers a ping.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	if err := h.svc.Ping(r.Context()); err != nil {
		h.log.Warn("Health check failed", "error", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, response{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, response{Status: "ok", Database: "ok"})
}

// splitOrigins parses a comma-separated ALLOWED_ORIGINS value. Empty means
// same-origin only.
func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// pathID reads a positive integer URL parameter. Writes 400 and returns false
// when it is missing or malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
