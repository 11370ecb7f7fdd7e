package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/metrics"
)

type RouterConfig struct {
	AllowedOrigins []string
	EnableDebug    bool
	// Metrics is optional; when set, requests are measured and /metrics is served.
	Metrics *metrics.Collector
	// Auth is optional; when set, user and debug routes require a bearer token.
	Auth      TokenValidator
	Readiness ReadinessReporter
}

func NewRouter(h *APIHandler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.With(zap.String("component", "http"))))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Response-Degraded", "X-Voice-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", HealthHandler)
	if cfg.Readiness != nil {
		r.Get("/ready", ReadyHandler(cfg.Readiness))
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(JWTAuth(cfg.Auth, logger))
		}

		r.Post("/chat", h.ChatHandler)
		r.Get("/profile", h.GetProfileHandler)
		r.Post("/profile", h.UpsertProfileHandler)
		r.Put("/profile", h.UpsertProfileHandler)
		r.Post("/tts", h.TTSHandler)

		if cfg.EnableDebug {
			r.Get("/debug/profiles", h.DebugProfilesHandler)
		}
	})

	return r
}
