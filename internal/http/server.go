// Package http exposes the group ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	applog "dividi/internal/log"
	"dividi/internal/middleware/ratelimit"
	"dividi/internal/middleware/security"
	"dividi/internal/middleware/trace"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Options struct {
	// PublicBaseURL prefixes share links; derived from the request when empty.
	PublicBaseURL      string
	AllowedOrigins     []string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs, beyond the private ranges, whose
	// X-Forwarded-For headers are believed.
	TrustedProxies []string
	ReadyChecks    map[string]ReadyCheck
	// Logger becomes the base request logger; slog.Default is used when nil.
	Logger *applog.Logger
}

type Server struct {
	http.Server

	groups        GroupService
	publicBaseURL string
	readyChecks   map[string]ReadyCheck

	router      *mux.Router
	trace       *trace.Middleware
	detector    *security.Detector
	rateLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
// Invalid trusted proxy CIDRs are rejected.
func NewServer(addr string, svc GroupService, opts Options) (*Server, error) {
	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	s := &Server{
		groups:        svc,
		publicBaseURL: opts.PublicBaseURL,
		readyChecks:   opts.ReadyChecks,
		router:        mux.NewRouter(),
		trace:         trace.NewMiddleware(detector.ExtractClientIP),
		detector:      detector,
		rateLimiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
	}
	s.setupRoutes()

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.buildHandler(opts.AllowedOrigins, opts.Logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: errorBody{Code: "not_found", Message: "route not found"}})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorJSON{Error: errorBody{Code: "method_not_allowed", Message: "method not allowed"}})
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}", s.handleGetGroup).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}/participants", s.handleAddParticipant).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/participants/{name}", s.handleRemoveParticipant).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/expenses", s.handleAddExpense).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/expenses/{expenseID}", s.handleDeleteExpense).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/balances", s.handleBalances).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}/settlements", s.handleSettlements).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}/share", s.handleShare).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}/activity", s.handleActivity).Methods(http.MethodGet)
}

// buildHandler wraps the router, outermost first: CORS, request logger,
// tracing, security headers, scan detection, rate limiting.
func (s *Server) buildHandler(allowedOrigins []string, logger *applog.Logger) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	var h http.Handler = s.router
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorJSON{Error: errorBody{Code: "rate_limited", Message: "too many requests, retry later"}})
	})(h)
	h = s.detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: errorBody{Code: "suspicious_request", Message: "request rejected"}})
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.trace.Handler(h)
	if logger != nil {
		h = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(h)
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID, "Location"},
		// Credentials stay off: wildcard origins are the default.
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler(h)
}

// Shutdown stops background helpers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
