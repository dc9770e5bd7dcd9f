package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/whisperapi/internal/api/handlers"
	"github.com/nikhilbhutani/whisperapi/internal/api/middleware"
	"github.com/nikhilbhutani/whisperapi/internal/audit"
	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/config"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

// Deps are the services the router exposes. Jobs, Queue and Usage are
// optional; their routes are only mounted when set.
type Deps struct {
	Version  string
	Selector *stt.Selector
	Service  *transcribe.Service
	Jobs     *cache.JobStore
	Queue    *queue.Client
	Usage    *audit.Service
	Metrics  *metrics.Metrics
	Checks   map[string]handlers.Pinger
}

type Router struct {
	mux     *chi.Mux
	cfg     *config.Config
	deps    Deps
	jwt     *auth.JWTMiddleware
	keys    *auth.APIKeyStore
	limiter *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		deps:    deps,
		jwt:     auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime),
		keys:    auth.NewAPIKeyStore(cfg.Auth.APIKeys),
		limiter: middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
	}
}

// Limiter exposes the rate limiter so the caller can run its cleanup loop.
func (rt *Router) Limiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.HTTP.AllowedOrigins))

	// Operational endpoints (no auth, no rate limit)
	health := handlers.NewHealthHandler(rt.deps.Version, rt.deps.Selector, rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(rt.limiter.Limit)

		r.Get("/", health.Root)
		r.Get("/health", health.Health)

		authH := handlers.NewAuthHandler(rt.keys, rt.jwt)
		r.Post("/auth/token", authH.Token)

		r.Group(func(r chi.Router) {
			r.Use(rt.jwt.Authenticate)

			transcribeH := handlers.NewTranscribeHandler(rt.deps.Service, rt.cfg.Transcribe.MaxUploadMB)
			r.Post("/transcribe", transcribeH.Transcribe)

			if rt.deps.Jobs != nil && rt.deps.Queue != nil {
				jobsH := handlers.NewJobsHandler(rt.deps.Jobs, rt.deps.Queue, rt.cfg.Jobs.SpoolDir, rt.cfg.Transcribe.MaxUploadMB, rt.deps.Metrics)
				r.Route("/transcribe/jobs", func(r chi.Router) {
					r.Post("/", jobsH.Create)
					r.Get("/{id}", jobsH.Get)
				})
			}

			if rt.deps.Usage != nil {
				usageH := handlers.NewUsageHandler(rt.deps.Usage)
				r.Get("/usage", usageH.Usage)
			}
		})
	})

	return r
}
