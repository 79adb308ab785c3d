package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/callbunker/callbunker/internal/api/middleware"
	"github.com/callbunker/callbunker/internal/database"
	"github.com/callbunker/callbunker/internal/database/models"
)

// TenantNotifier is told about tenant lifecycle events.
type TenantNotifier interface {
	TenantDeleted(t *models.Tenant)
}

// Mounter attaches a route group to the root router.
type Mounter interface {
	Mount(r chi.Router)
}

// Config carries the Server's dependencies.
type Config struct {
	Tenants    database.TenantRepository
	Pool       database.NumberPoolRepository
	Trust      database.TrustRepository
	Ledger     database.LedgerRepository
	CallLogs   database.CallLogRepository
	Voicemails database.VoicemailRepository
	Admins     database.AdminUserRepository
	Notifier   TenantNotifier // optional

	// Voice mounts the provider webhook routes; Metrics serves /metrics.
	Voice   Mounter
	Metrics http.Handler

	JWTSecret  []byte
	TokenTTL   time.Duration
	TLSEnabled bool
	StartTime  time.Time
	Now        func() time.Time
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux

	tenants    database.TenantRepository
	pool       database.NumberPoolRepository
	trust      database.TrustRepository
	ledger     database.LedgerRepository
	callLogs   database.CallLogRepository
	voicemails database.VoicemailRepository
	admins     database.AdminUserRepository
	notifier   TenantNotifier

	voice   Mounter
	metrics http.Handler

	jwtSecret  []byte
	tokenTTL   time.Duration
	tlsEnabled bool
	startTime  time.Time
	now        func() time.Time

	apiLimiter  *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

const defaultTokenTTL = 12 * time.Hour

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		tenants:     cfg.Tenants,
		pool:        cfg.Pool,
		trust:       cfg.Trust,
		ledger:      cfg.Ledger,
		callLogs:    cfg.CallLogs,
		voicemails:  cfg.Voicemails,
		admins:      cfg.Admins,
		notifier:    cfg.Notifier,
		voice:       cfg.Voice,
		metrics:     cfg.Metrics,
		jwtSecret:   cfg.JWTSecret,
		tokenTTL:    cfg.TokenTTL,
		tlsEnabled:  cfg.TLSEnabled,
		startTime:   cfg.StartTime,
		now:         cfg.Now,
		apiLimiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter: middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.startTime.IsZero() {
		s.startTime = s.now()
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the background rate limiter cleanup.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)

	// Provider webhooks answer with markup and install their own recoverer.
	if s.voice != nil {
		s.voice.Mount(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(middleware.SecurityHeaders(s.tlsEnabled))

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(s.authLimiter))
				r.Post("/auth/login", s.handleLogin)
				r.Post("/self/auth", s.handleSelfAuth)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(s.apiLimiter))
				r.Use(middleware.RequireRole(s.jwtSecret, middleware.RoleTenant))
				r.Get("/self/settings", s.handleGetSelfSettings)
				r.Put("/self/settings", s.handleUpdateSelfSettings)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(s.apiLimiter))
				r.Use(middleware.RequireRole(s.jwtSecret, middleware.RoleAdmin))

				r.Route("/tenants", func(r chi.Router) {
					r.Get("/", s.handleListTenants)
					r.Post("/", s.handleCreateTenant)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetTenant)
						r.Put("/", s.handleUpdateTenant)
						r.Delete("/", s.handleDeleteTenant)

						r.Get("/trust", s.handleListTrust)
						r.Post("/trust", s.handleAddTrust)
						r.Get("/trust/check", s.handleCheckTrust)
						r.Delete("/trust/{entryID}", s.handleDeleteTrust)

						r.Get("/blocks", s.handleListBlocks)
						r.Delete("/blocks/{caller}", s.handleUnblock)
						r.Delete("/failures", s.handleClearFailures)

						r.Get("/calls", s.handleListCalls)
						r.Get("/voicemails", s.handleListVoicemails)
					})
				})

				r.Route("/numbers", func(r chi.Router) {
					r.Get("/", s.handleListNumbers)
					r.Post("/", s.handleCreateNumber)
					r.Route("/{id}", func(r chi.Router) {
						r.Delete("/", s.handleDeleteNumber)
						r.Post("/assign", s.handleAssignNumber)
						r.Post("/release", s.handleReleaseNumber)
					})
				})
			})
		})
	})
}
